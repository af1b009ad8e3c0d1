package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ChuLiYu/hash-queue/pkg/types"
)

// MinInterval lower bound of the tick interval
const MinInterval = 10 * time.Millisecond

// MaxIntervalMs largest interval in milliseconds that fits a time.Duration
const MaxIntervalMs = math.MaxInt64 / int64(time.Millisecond)

// ErrInvalidConfig wrapped by every ValidationError
var ErrInvalidConfig = errors.New("invalid config")

// ValidationError names the rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

// Patch is a partial runtime update. Nil fields are left unchanged.
type Patch struct {
	IntervalMs      *int64
	MaxQueue        *int
	MaxParallelJobs *int
}

// UnmarshalJSON accepts {"interval": ms, "maxQueue": n, "maxParallelJobs": n}.
// A non-integer value yields a ValidationError naming the field.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for _, field := range []string{"interval", "maxQueue", "maxParallelJobs"} {
		msg, ok := raw[field]
		if !ok || bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
			continue
		}
		n, err := parseInteger(msg)
		if err != nil {
			return &ValidationError{Field: field, Reason: "must be an integer"}
		}
		switch field {
		case "interval":
			p.IntervalMs = &n
		case "maxQueue":
			v := int(n)
			p.MaxQueue = &v
		case "maxParallelJobs":
			v := int(n)
			p.MaxParallelJobs = &v
		}
	}
	return nil
}

func parseInteger(msg json.RawMessage) (int64, error) {
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	if err := dec.Decode(&num); err != nil {
		return 0, err
	}
	if n, err := num.Int64(); err == nil {
		return n, nil
	}
	// 50.0 is still an integer
	f, err := num.Float64()
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("not an integer: %s", num)
	}
	return int64(f), nil
}

// IntervalFromMillis converts ms to a tick interval, rejecting values below
// MinInterval or beyond what a time.Duration can hold.
func IntervalFromMillis(ms int64) (time.Duration, error) {
	if ms < MinInterval.Milliseconds() {
		return 0, &ValidationError{Field: "interval", Reason: "must be >= 10ms"}
	}
	if ms > MaxIntervalMs {
		return 0, &ValidationError{Field: "interval", Reason: fmt.Sprintf("must be <= %dms", MaxIntervalMs)}
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ValidateRuntime interval >= 10ms, maxQueue >= 1, maxParallelJobs >= 1.
func ValidateRuntime(c types.RuntimeConfig) error {
	if c.Interval < MinInterval {
		return &ValidationError{Field: "interval", Reason: "must be >= 10ms"}
	}
	if c.MaxQueue < 1 {
		return &ValidationError{Field: "maxQueue", Reason: "must be >= 1"}
	}
	if c.MaxParallelJobs < 1 {
		return &ValidationError{Field: "maxParallelJobs", Reason: "must be >= 1"}
	}
	return nil
}

// Store holds the runtime tunables read by admission and dispatch.
type Store struct {
	mu      sync.RWMutex
	cfg     types.RuntimeConfig
	changes chan types.RuntimeConfig
}

// NewStore validates initial and returns a Store seeded with it.
func NewStore(initial types.RuntimeConfig) (*Store, error) {
	if err := ValidateRuntime(initial); err != nil {
		return nil, err
	}
	return &Store{
		cfg:     initial,
		changes: make(chan types.RuntimeConfig, 1),
	}, nil
}

// Get returns the current tunables.
func (s *Store) Get() types.RuntimeConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update applies p atomically. Any invalid field rejects the whole patch and
// leaves the store unchanged. An interval change is published on Changes.
func (s *Store) Update(p Patch) (types.RuntimeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	if p.IntervalMs != nil {
		d, err := IntervalFromMillis(*p.IntervalMs)
		if err != nil {
			return s.cfg, err
		}
		next.Interval = d
	}
	if p.MaxQueue != nil {
		if *p.MaxQueue < 1 {
			return s.cfg, &ValidationError{Field: "maxQueue", Reason: "must be >= 1"}
		}
		next.MaxQueue = *p.MaxQueue
	}
	if p.MaxParallelJobs != nil {
		if *p.MaxParallelJobs < 1 {
			return s.cfg, &ValidationError{Field: "maxParallelJobs", Reason: "must be >= 1"}
		}
		next.MaxParallelJobs = *p.MaxParallelJobs
	}

	intervalChanged := next.Interval != s.cfg.Interval
	s.cfg = next

	if intervalChanged {
		// latest wins: drop a pending notification nobody consumed yet
		select {
		case <-s.changes:
		default:
		}
		s.changes <- next
	}
	return next, nil
}

// Changes delivers the new config after every interval change.
func (s *Store) Changes() <-chan types.RuntimeConfig {
	return s.changes
}
