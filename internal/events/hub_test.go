package events

import (
	"sync"
	"testing"

	"github.com/ChuLiYu/hash-queue/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub(4)
	a := hub.Subscribe()
	b := hub.Subscribe()
	assert.Equal(t, 2, hub.Subscribers())

	job := &types.Job{ID: "j1", Algorithm: "md5", Status: types.StatusQueued, Input: "secret"}
	hub.Publish(ForJob(job))

	for _, sub := range []*Subscription{a, b} {
		ev := <-sub.C
		assert.Equal(t, JobQueued, ev.Type)
		require.NotNil(t, ev.Job)
		assert.Equal(t, types.JobID("j1"), ev.Job.ID)
	}
}

func TestForJobStatusMapping(t *testing.T) {
	cases := map[types.JobStatus]Type{
		types.StatusQueued:     JobQueued,
		types.StatusProcessing: JobProcessing,
		types.StatusDone:       JobDone,
		types.StatusFailed:     JobFailed,
	}
	for status, want := range cases {
		ev := ForJob(&types.Job{ID: "x", Status: status})
		assert.Equal(t, want, ev.Type, status)
	}
}

func TestPublishDropsWhenSubscriberLags(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe()

	hub.Publish(Event{Type: JobQueued})
	hub.Publish(Event{Type: JobDone}) // buffer full

	assert.Equal(t, 1, sub.Dropped())
	ev := <-sub.C
	assert.Equal(t, JobQueued, ev.Type)
}

func TestDroppedReadConcurrentWithPublish(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			hub.Publish(Event{Type: JobDone})
		}
	}()
	for i := 0; i < 100; i++ {
		_ = sub.Dropped()
	}
	wg.Wait()

	assert.Equal(t, 99, sub.Dropped())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe()
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub) // idempotent

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers())

	assert.NotPanics(t, func() { hub.Publish(Event{Type: JobDone}) })
}

func TestClose(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe()
	hub.Close()

	_, ok := <-sub.C
	assert.False(t, ok)

	late := hub.Subscribe()
	_, ok = <-late.C
	assert.False(t, ok)
	hub.Close()
}
