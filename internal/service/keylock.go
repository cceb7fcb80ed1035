package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

// KeyLock serializes work per key. Holders of different keys never block
// each other. Entries are reference counted and dropped when unused.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyLock() *KeyLock {
	return &KeyLock{entries: make(map[string]*keyEntry)}
}

func (l *KeyLock) acquire(key string) *keyEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &keyEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *KeyLock) release(key string, e *keyEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock waits until key is free or ctx is done. The returned func unlocks.
func (l *KeyLock) Lock(ctx context.Context, key string) (func(), error) {
	e := l.acquire(key)
	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			l.release(key, e)
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}
}

// TryLock takes key only if nobody holds it. A busy key is a consistency
// violation the caller must retry or queue.
func (l *KeyLock) TryLock(key string) (func(), error) {
	e := l.acquire(key)
	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			l.release(key, e)
		}, nil
	default:
		l.release(key, e)
		return nil, fmt.Errorf("%q is locked by another operation: %w", key, domain.ErrConsistency)
	}
}

// LockAll locks several keys in sorted order so two callers locking
// overlapping sets cannot deadlock. Keys must be sorted and distinct.
func (l *KeyLock) LockAll(ctx context.Context, keys ...string) (func(), error) {
	unlocks := make([]func(), 0, len(keys))
	unlockAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, key := range keys {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			unlockAll()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return unlockAll, nil
}

func (l *KeyLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
