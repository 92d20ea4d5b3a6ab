package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocksSerializeSameKey(t *testing.T) {
	locks := NewPriceListLocks()

	release, err := locks.Acquire(context.Background(), "pl-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := locks.Acquire(context.Background(), "pl-1")
		assert.NoError(t, err)
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire must block while the lock is held")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never proceeded after release")
	}
}

func TestLocksIndependentKeys(t *testing.T) {
	locks := NewPriceListLocks()

	r1, err := locks.Acquire(context.Background(), "pl-1")
	require.NoError(t, err)
	defer r1()

	done := make(chan struct{})
	go func() {
		r2, err := locks.Acquire(context.Background(), "pl-2")
		assert.NoError(t, err)
		r2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different keys must not contend")
	}
}

func TestLocksAcquireHonoursCancellation(t *testing.T) {
	locks := NewPriceListLocks()

	release, err := locks.Acquire(context.Background(), "pl-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := locks.Acquire(ctx, "pl-1")
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled acquire never returned")
	}
}

func TestLocksEntryCleanup(t *testing.T) {
	locks := NewPriceListLocks()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(context.Background(), "pl-1")
			if assert.NoError(t, err) {
				release()
			}
		}()
	}
	wg.Wait()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.entries, "released keys must not leak entries")
}
