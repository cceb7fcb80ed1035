package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLock_TryLockBusy(t *testing.T) {
	l := NewKeyLock()

	unlock, err := l.TryLock("a")
	require.NoError(t, err)

	_, err = l.TryLock("a")
	assert.True(t, errors.Is(err, domain.ErrConsistency))

	other, err := l.TryLock("b")
	require.NoError(t, err)
	other()

	unlock()
	again, err := l.TryLock("a")
	require.NoError(t, err)
	again()

	assert.Equal(t, 0, l.size())
}

func TestKeyLock_LockHonoursContext(t *testing.T) {
	l := NewKeyLock()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyLock_Serializes(t *testing.T) {
	l := NewKeyLock()
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "same")
			if err != nil {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.size())
}

func TestKeyLock_LockAll(t *testing.T) {
	l := NewKeyLock()
	unlock, err := l.LockAll(context.Background(), "a", "b")
	require.NoError(t, err)

	_, err = l.TryLock("b")
	assert.Error(t, err)

	unlock()
	assert.Equal(t, 0, l.size())
}
