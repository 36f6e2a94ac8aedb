package chaos

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"gymbooking/internal/uow"
)

// ErrInjectedFault is returned by commits the FaultyStore decided to fail.
var ErrInjectedFault = errors.New("chaos: injected commit failure")

// FaultyStore wraps a uow.Store and injects commit failures and latency.
// Loads are passed through untouched.
type FaultyStore struct {
	inner uow.Store

	mu       sync.Mutex
	failNext int
	rate     float64
	latency  time.Duration
	injected int
}

func NewFaultyStore(inner uow.Store) *FaultyStore {
	return &FaultyStore{inner: inner}
}

// FailNext makes the next n commits fail.
func (f *FaultyStore) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

// SetFailureRate fails each commit with probability p.
func (f *FaultyStore) SetFailureRate(p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = min(max(p, 0), 1)
}

// SetLatency delays every commit by d.
func (f *FaultyStore) SetLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

// Reset removes every fault.
func (f *FaultyStore) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext, f.rate, f.latency = 0, 0, 0
}

// Injected reports how many commits were failed on purpose.
func (f *FaultyStore) Injected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.injected
}

func (f *FaultyStore) Begin(ctx context.Context) (uow.Tx, error) {
	tx, err := f.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, store: f}, nil
}

// decide reports the latency to apply and whether the commit must fail.
func (f *FaultyStore) decide() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fail := false
	switch {
	case f.failNext > 0:
		f.failNext--
		fail = true
	case f.rate > 0 && rand.Float64() < f.rate:
		fail = true
	}
	if fail {
		f.injected++
	}
	return f.latency, fail
}

type faultyTx struct {
	uow.Tx
	store *FaultyStore
}

func (t *faultyTx) Commit(ctx context.Context, changes []uow.Change) error {
	latency, fail := t.store.decide()
	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	if fail {
		return ErrInjectedFault
	}
	return t.Tx.Commit(ctx, changes)
}
