package session

import (
	"sync"
	"testing"
)

func TestState_InitiallyNotReady(t *testing.T) {
	if NewState().Ready() {
		t.Fatal("new state should not be ready")
	}
}

func TestState_MarkReadyOnce(t *testing.T) {
	s := NewState()
	if !s.MarkReady() {
		t.Fatal("first MarkReady should transition")
	}
	if s.MarkReady() {
		t.Fatal("second MarkReady should be a no-op")
	}
	if !s.Ready() {
		t.Fatal("state should stay ready")
	}
}

func TestState_ConcurrentMarkReady(t *testing.T) {
	s := NewState()
	var wg sync.WaitGroup
	var mu sync.Mutex
	transitions := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.MarkReady() {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if transitions != 1 {
		t.Fatalf("expected exactly 1 transition, got %d", transitions)
	}
}
