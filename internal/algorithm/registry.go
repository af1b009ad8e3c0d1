// ============================================================================
// Hash-Queue Algorithm Registry
// ============================================================================
//
// Package: internal/algorithm
// File: registry.go
// Purpose: Maps algorithm names to the computation run for a job
//
// Contract of every registered Func:
//   - ErrInvalidInput when the job carries no input
//   - non-string input is normalised with encoding/json (map keys sorted,
//     so the same structure always hashes to the same digest)
//   - the returned Result carries algorithm, hex digest, digest byte length
//     and the size of the normalised input
//
// The registry is read concurrently by the admission gate and the
// scheduler, writes only happen during setup.
//
// ============================================================================

package algorithm

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ChuLiYu/hash-queue/pkg/types"
)

var (
	// ErrInvalidInput job has no usable input
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownAlgorithm name is not registered
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
)

// Func computes the result of one job. It must honour ctx cancellation at
// its suspension points.
type Func func(ctx context.Context, job *types.Job) (*types.Result, error)

// Registry algorithm name -> Func
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// NewDefaultRegistry registers md5, sha1, sha256, sha512 and slow.
func NewDefaultRegistry() *Registry {
	return NewDefaultRegistryWithOptions(DefaultSlowOptions())
}

// NewDefaultRegistryWithOptions is NewDefaultRegistry with a custom delay
// range for the slow variant.
func NewDefaultRegistryWithOptions(slow SlowOptions) *Registry {
	r := NewRegistry()
	for _, name := range DigestNames() {
		r.Register(name, Digest(name))
	}
	r.Register(SlowName, Slow(slow))
	return r
}

// Register adds or replaces fn under name.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Unregister removes name. Jobs already admitted under it fail at dispatch.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.funcs, name)
}

// Lookup returns the Func registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
