package guard

import (
	"sync"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("sub:1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("expected 50 increments, got %d", counter)
	}
}

func TestLockDifferentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("sub:1")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("sub:2")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("independent key blocked behind sub:1")
	}
}

func TestLockEntriesAreReleased(t *testing.T) {
	km := NewKeyedMutex()

	for i := 0; i < 10; i++ {
		unlock := km.Lock("sub:1")
		unlock()
	}

	km.mu.Lock()
	remaining := len(km.locks)
	km.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected no retained entries, got %d", remaining)
	}
}
