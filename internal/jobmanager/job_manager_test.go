package jobmanager

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ChuLiYu/hash-queue/pkg/types"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// newTestJob creates a test Job
func newTestJob(id string) *types.Job {
	return &types.Job{
		ID:        types.JobID(id),
		Algorithm: "md5",
		Input:     "hello",
	}
}

// assertNoError asserts no error occurred
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertError asserts a specific error occurred
func assertError(t *testing.T, err error, want error) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error %v, got nil", want)
		return
	}
	if !errors.Is(err, want) {
		t.Errorf("expected error %v, got %v", want, err)
	}
}

// enqueueN enqueues job-000..job-(n-1)
func enqueueN(t *testing.T, jm *JobManager, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		assertNoError(t, jm.Enqueue(newTestJob(fmt.Sprintf("job-%03d", i)), 1<<20))
	}
}

// dispatch pops the head and marks it processing
func dispatch(t *testing.T, jm *JobManager) types.JobID {
	t.Helper()
	id, job, ok := jm.PopQueued()
	if !ok || job == nil {
		t.Fatalf("expected a queued job")
	}
	_, err := jm.MarkProcessing(id)
	assertNoError(t, err)
	return id
}

// ============================================================================
// Unit Tests
// ============================================================================

func TestNewJobManager(t *testing.T) {
	jm := NewJobManager(0)

	if jm.jobs == nil || jm.queue == nil || jm.inFlight == nil || jm.history == nil {
		t.Fatal("job manager not initialized")
	}
	if jm.history.Cap() != DefaultHistorySize {
		t.Errorf("history cap: got %d, want %d", jm.history.Cap(), DefaultHistorySize)
	}

	stats := jm.Stats()
	for _, key := range []string{"queued", "processing", "history", "done_total", "failed_total"} {
		if stats[key] != 0 {
			t.Errorf("stats[%s]: got %d, want 0", key, stats[key])
		}
	}
}

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantErr bool
	}{
		{"string", "hello", false},
		{"empty string accepted at admission", "", false},
		{"object", map[string]any{"a": 1.0}, false},
		{"array", []any{"a", 1.0}, false},
		{"nil", nil, true},
		{"number", 42.0, true},
		{"bool", true, true},
		{"typed map", map[string]string{"a": "b"}, false},
		{"struct", struct{ Name string }{"x"}, false},
		{"struct pointer", &struct{ Name string }{"x"}, false},
		{"byte array", [4]byte{1, 2, 3, 4}, false},
		{"nil map", map[string]any(nil), true},
		{"nil pointer", (*struct{ Name string })(nil), true},
		{"int", 7, true},
		{"channel", make(chan int), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput(tt.input)
			if tt.wantErr {
				assertError(t, err, ErrInvalidInput)
			} else {
				assertNoError(t, err)
			}
		})
	}
}

func TestEnqueue(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*JobManager)
		job      *types.Job
		maxQueue int
		wantErr  error
	}{
		{
			name:     "Normal single job enqueue",
			setup:    func(jm *JobManager) {},
			job:      newTestJob("task-001"),
			maxQueue: 10,
		},
		{
			name:     "Duplicate ID error",
			setup:    func(jm *JobManager) { jm.Enqueue(newTestJob("task-001"), 10) },
			job:      newTestJob("task-001"),
			maxQueue: 10,
			wantErr:  ErrDuplicateJob,
		},
		{
			name: "Queue full",
			setup: func(jm *JobManager) {
				jm.Enqueue(newTestJob("task-001"), 2)
				jm.Enqueue(newTestJob("task-002"), 2)
			},
			job:      newTestJob("task-003"),
			maxQueue: 2,
			wantErr:  ErrQueueFull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jm := NewJobManager(0)
			tt.setup(jm)

			err := jm.Enqueue(tt.job, tt.maxQueue)
			if tt.wantErr != nil {
				assertError(t, err, tt.wantErr)
				return
			}

			assertNoError(t, err)
			got, ok := jm.Get(tt.job.ID)
			if !ok {
				t.Fatalf("job %s not found", tt.job.ID)
			}
			if got.Status != types.StatusQueued {
				t.Errorf("status: got %s, want %s", got.Status, types.StatusQueued)
			}
			if got.CreatedAt == 0 {
				t.Error("createdAt not set")
			}
		})
	}
}

// In-flight jobs do not count against maxQueue: only the queue length is
// compared, so outstanding work may exceed maxQueue by the parallelism cap.
func TestEnqueueIgnoresInFlightForCapacity(t *testing.T) {
	jm := NewJobManager(0)
	assertNoError(t, jm.Enqueue(newTestJob("a"), 2))
	assertNoError(t, jm.Enqueue(newTestJob("b"), 2))
	dispatch(t, jm)
	dispatch(t, jm)

	assertNoError(t, jm.Enqueue(newTestJob("c"), 2))
	assertNoError(t, jm.Enqueue(newTestJob("d"), 2))
	assertError(t, jm.Enqueue(newTestJob("e"), 2), ErrQueueFull)

	if got := jm.QueueLen() + jm.InFlightCount(); got != 4 {
		t.Errorf("outstanding: got %d, want 4", got)
	}
}

func TestPopQueuedFIFO(t *testing.T) {
	jm := NewJobManager(0)
	enqueueN(t, jm, 3)

	for i := 0; i < 3; i++ {
		id, job, ok := jm.PopQueued()
		if !ok || job == nil {
			t.Fatalf("pop %d: expected job", i)
		}
		want := types.JobID(fmt.Sprintf("job-%03d", i))
		if id != want {
			t.Errorf("pop %d: got %s, want %s", i, id, want)
		}
	}

	if _, _, ok := jm.PopQueued(); ok {
		t.Error("expected empty queue")
	}
}

func TestPopQueuedMissingRecord(t *testing.T) {
	jm := NewJobManager(0)
	enqueueN(t, jm, 1)
	delete(jm.jobs, "job-000")

	id, job, ok := jm.PopQueued()
	if !ok {
		t.Fatal("expected queue entry")
	}
	if id != "job-000" || job != nil {
		t.Errorf("expected missing record for job-000, got %v", job)
	}
}

func TestMarkProcessing(t *testing.T) {
	jm := NewJobManager(0)
	enqueueN(t, jm, 1)

	_, err := jm.MarkProcessing("nope")
	assertError(t, err, ErrJobNotFound)

	id := dispatch(t, jm)
	job, _ := jm.Get(id)
	if job.Status != types.StatusProcessing || job.StartedAt == nil {
		t.Errorf("expected processing with startedAt, got %+v", job)
	}

	_, err = jm.MarkProcessing(id)
	assertError(t, err, ErrNotQueued)
}

func TestCompleteMovesToHistory(t *testing.T) {
	jm := NewJobManager(0)
	enqueueN(t, jm, 1)
	id := dispatch(t, jm)

	done, err := jm.Complete(id, &types.Result{Algorithm: "md5", Hex: "ab", Bytes: 16, InputSize: 5})
	assertNoError(t, err)
	if done.Status != types.StatusDone || done.CompletedAt == nil || done.Result == nil {
		t.Errorf("unexpected terminal job: %+v", done)
	}

	if _, live := jm.jobs[id]; live {
		t.Error("job still in live table")
	}
	if _, inFlight := jm.inFlight[id]; inFlight {
		t.Error("job still in flight")
	}
	if _, ok := jm.history.Get(id); !ok {
		t.Error("job missing from history")
	}
	if len(jm.ListLive()) != 0 {
		t.Error("expected no live jobs")
	}

	got, ok := jm.Get(id)
	if !ok || got.Status != types.StatusDone {
		t.Errorf("Get after completion: %+v, %v", got, ok)
	}
}

func TestFailRecordsError(t *testing.T) {
	jm := NewJobManager(0)
	enqueueN(t, jm, 1)
	id := dispatch(t, jm)

	failed, err := jm.Fail(id, errors.New("boom"))
	assertNoError(t, err)
	if failed.Status != types.StatusFailed || failed.FailedAt == nil || failed.Error != "boom" {
		t.Errorf("unexpected failed job: %+v", failed)
	}
	if failed.Result != nil || failed.CompletedAt != nil {
		t.Error("failed job must not carry result or completedAt")
	}
}

func TestDoubleCompletionGuard(t *testing.T) {
	jm := NewJobManager(0)
	enqueueN(t, jm, 2)
	id := dispatch(t, jm)

	_, err := jm.Complete(id, &types.Result{})
	assertNoError(t, err)

	_, err = jm.Complete(id, &types.Result{})
	assertError(t, err, ErrAlreadyTerminal)
	_, err = jm.Fail(id, errors.New("late"))
	assertError(t, err, ErrAlreadyTerminal)

	// still queued, never dispatched
	_, err = jm.Complete("job-001", &types.Result{})
	assertError(t, err, ErrNotProcessing)

	_, err = jm.Fail("ghost", nil)
	assertError(t, err, ErrJobNotFound)

	if jm.HistoryLen() != 1 {
		t.Errorf("history len: got %d, want 1", jm.HistoryLen())
	}
}

func TestHistoryKeepsMostRecent(t *testing.T) {
	jm := NewJobManager(0)
	total := DefaultHistorySize + 37
	enqueueN(t, jm, total)
	for i := 0; i < total; i++ {
		id := dispatch(t, jm)
		_, err := jm.Complete(id, &types.Result{})
		assertNoError(t, err)
	}

	history := jm.ListHistory()
	if len(history) != DefaultHistorySize {
		t.Fatalf("history len: got %d, want %d", len(history), DefaultHistorySize)
	}
	for i, s := range history {
		want := types.JobID(fmt.Sprintf("job-%03d", i+37))
		if s.ID != want {
			t.Fatalf("history[%d]: got %s, want %s", i, s.ID, want)
		}
	}
	if _, ok := jm.Get("job-000"); ok {
		t.Error("evicted job still retrievable")
	}
}

func TestListLiveOrder(t *testing.T) {
	jm := NewJobManager(0)
	enqueueN(t, jm, 3)
	dispatch(t, jm)

	live := jm.ListLive()
	if len(live) != 3 {
		t.Fatalf("live len: got %d, want 3", len(live))
	}
	if live[0].ID != "job-001" || live[1].ID != "job-002" || live[2].ID != "job-000" {
		t.Errorf("unexpected order: %v", live)
	}
	if live[2].Status != types.StatusProcessing {
		t.Errorf("expected processing, got %s", live[2].Status)
	}
}

func TestSnapshotRestore(t *testing.T) {
	jm := NewJobManager(10)
	enqueueN(t, jm, 3)
	for i := 0; i < 2; i++ {
		id := dispatch(t, jm)
		_, err := jm.Complete(id, &types.Result{Hex: "ff"})
		assertNoError(t, err)
	}

	data := jm.Snapshot()
	if len(data.History) != 2 || data.SchemaVer != 1 {
		t.Fatalf("unexpected snapshot: %+v", data)
	}
	// queued job must not leak into snapshot
	data.History = append(data.History, &types.Job{ID: "live", Status: types.StatusQueued})

	restored := NewJobManager(10)
	if n := restored.Restore(data); n != 2 {
		t.Errorf("restored: got %d, want 2", n)
	}
	if _, ok := restored.Get("job-000"); !ok {
		t.Error("job-000 not restored")
	}
	if _, ok := restored.Get("live"); ok {
		t.Error("non-terminal job restored")
	}
}

func TestRestoreSkipsDuplicateIDs(t *testing.T) {
	data := types.SnapshotData{
		SchemaVer: 1,
		History: []*types.Job{
			{ID: "a", Status: types.StatusDone},
			{ID: "a", Status: types.StatusFailed},
			{ID: "b", Status: types.StatusDone},
			{ID: "c", Status: types.StatusDone},
		},
	}

	jm := NewJobManager(2)
	if n := jm.Restore(data); n != 2 {
		t.Errorf("restored: got %d, want 2", n)
	}
	if got := jm.HistoryLen(); got != 2 {
		t.Errorf("history len: got %d, want 2", got)
	}
	if _, ok := jm.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	for _, id := range []types.JobID{"b", "c"} {
		if _, ok := jm.Get(id); !ok {
			t.Errorf("%s missing after restore", id)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	jm := NewJobManager(0)
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				if err := jm.Enqueue(newTestJob(id), 1<<20); err != nil {
					t.Errorf("enqueue %s: %v", id, err)
					return
				}
				jm.ListLive()
				jm.Stats()
			}
		}(w)
	}
	wg.Wait()

	if got := jm.QueueLen(); got != 400 {
		t.Errorf("queue len: got %d, want 400", got)
	}
}
