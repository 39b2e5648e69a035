package runner

import (
	"context"
	"testing"
	"time"
)

func TestLifecycleRunnerRunsHooksAndDrains(t *testing.T) {
	var started, stopped, drained bool
	r := NewLifecycleRunner(
		DrainerFunc(func() error { drained = true; return nil }),
		Hooks{
			OnStart: func() { started = true },
			OnStop:  func() { stopped = true },
		},
		time.Second,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning {
		if time.Now().After(deadline) {
			t.Fatalf("runner never reached running state")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
	if !started || !stopped || !drained {
		t.Fatalf("hooks not all invoked: start=%v stop=%v drain=%v", started, stopped, drained)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped state, got %d", r.State())
	}
}

func TestLifecycleRunnerRejectsSecondRun(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second)
	go func() { _ = r.Run(context.Background()) }()
	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning {
		if time.Now().After(deadline) {
			t.Fatalf("runner never reached running state")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected error on second run")
	}
	_ = r.Stop()
}

func TestLifecycleRunnerDrainTimeout(t *testing.T) {
	block := make(chan struct{})
	r := NewLifecycleRunner(
		DrainerFunc(func() error { <-block; return nil }),
		Hooks{},
		50*time.Millisecond,
	)
	go func() { _ = r.Run(context.Background()) }()
	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning {
		if time.Now().After(deadline) {
			t.Fatalf("runner never reached running state")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := r.Stop(); err == nil {
		t.Fatalf("expected drain timeout error")
	}
	close(block)
}
