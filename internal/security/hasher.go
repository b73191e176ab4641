package security

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// Hasher bounds how many Argon2 derivations run at once. Each derivation
// holds MemoryKiB of memory and a full core for its duration.
type Hasher struct {
	params  Params
	sem     *semaphore.Weighted
	observe func(op string, d time.Duration)
}

type HasherOption func(*Hasher)

// WithObserver reports the duration of every hash ("hash") and verify
// ("verify") call.
func WithObserver(fn func(op string, d time.Duration)) HasherOption {
	return func(h *Hasher) {
		h.observe = fn
	}
}

// NewHasher returns a Hasher running at most workers derivations
// concurrently. workers <= 0 means GOMAXPROCS.
func NewHasher(params Params, workers int, opts ...HasherOption) *Hasher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	h := &Hasher{
		params: params,
		sem:    semaphore.NewWeighted(int64(workers)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hasher) Params() Params {
	return h.params
}

// Hash waits for a free slot, then hashes plain. The only errors are ctx
// errors while waiting and parameter errors from HashPassword.
func (h *Hasher) Hash(ctx context.Context, plain string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	start := time.Now()
	encoded, err := HashPassword(plain, h.params)
	h.record("hash", start)

	return encoded, err
}

// Verify waits for a free slot, then checks plain against encoded.
func (h *Hasher) Verify(ctx context.Context, plain, encoded string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	start := time.Now()
	ok := VerifyPassword(plain, encoded)
	h.record("verify", start)

	return ok, nil
}

func (h *Hasher) record(op string, start time.Time) {
	if h.observe != nil {
		h.observe(op, time.Since(start))
	}
}
