package algorithm

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"math/rand"
	"time"

	"github.com/ChuLiYu/hash-queue/pkg/types"
)

// SlowName is the registry key of the deliberately slow variant.
const SlowName = "slow"

var digests = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// DigestNames lists the plain digest algorithms.
func DigestNames() []string {
	return []string{"md5", "sha1", "sha256", "sha512"}
}

// Normalize returns the bytes that get hashed for input.
// Strings are used as-is, everything else is JSON encoded.
func Normalize(input any) ([]byte, error) {
	switch v := input.(type) {
	case nil:
		return nil, ErrInvalidInput
	case string:
		if v == "" {
			return nil, fmt.Errorf("%w: input is empty", ErrInvalidInput)
		}
		return []byte(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return data, nil
	}
}

// Digest returns a Func hashing the normalised input once with name.
func Digest(name string) Func {
	newHash, ok := digests[name]
	if !ok {
		panic("algorithm: unknown digest " + name)
	}

	return func(ctx context.Context, job *types.Job) (*types.Result, error) {
		data, err := Normalize(job.Input)
		if err != nil {
			return nil, err
		}

		h := newHash()
		h.Write(data)
		sum := h.Sum(nil)

		return &types.Result{
			Algorithm: name,
			Hex:       hex.EncodeToString(sum),
			Bytes:     len(sum),
			InputSize: len(data),
		}, nil
	}
}

// SlowOptions delay range of the slow variant
type SlowOptions struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultSlowOptions 3s..6s
func DefaultSlowOptions() SlowOptions {
	return SlowOptions{MinDelay: 3 * time.Second, MaxDelay: 6 * time.Second}
}

const (
	slowBaseIterations = 1000
	slowMaxIterations  = 100000
	// ctx is polled every slowCheckEvery rounds
	slowCheckEvery = 1000
)

// SlowIterations number of chained sha256 rounds for an input of size n.
func SlowIterations(n int) int {
	it := slowBaseIterations + n*10
	if it > slowMaxIterations {
		it = slowMaxIterations
	}
	return it
}

// Slow returns a Func that sleeps for a random delay in
// [opts.MinDelay, opts.MaxDelay) and then runs SlowIterations chained
// sha256 rounds over the input.
func Slow(opts SlowOptions) Func {
	return func(ctx context.Context, job *types.Job) (*types.Result, error) {
		data, err := Normalize(job.Input)
		if err != nil {
			return nil, err
		}

		delay := opts.MinDelay
		if span := opts.MaxDelay - opts.MinDelay; span > 0 {
			delay += time.Duration(rand.Int63n(int64(span)))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		iterations := SlowIterations(len(data))
		sum := sha256.Sum256(data)
		for i := 1; i < iterations; i++ {
			if i%slowCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			sum = sha256.Sum256(sum[:])
		}

		return &types.Result{
			Algorithm: SlowName,
			Hex:       hex.EncodeToString(sum[:]),
			Bytes:     len(sum),
			InputSize: len(data),
			SlowDetails: &types.SlowDetails{
				BaseAlgorithm: "sha256",
				Iterations:    iterations,
				DelayMs:       delay.Milliseconds(),
			},
		}, nil
	}
}
