package tiller

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestControllerCancelIsTerminal(t *testing.T) {
	c := NewRunController()
	if c.Cancelled() {
		t.Fatal("fresh controller should not be cancelled")
	}
	c.Cancel(&ErrRunCancelled{Reason: "test"})
	c.Cancel(nil) // idempotent

	if !c.Cancelled() {
		t.Fatal("controller should be cancelled")
	}
	var cancelled *ErrRunCancelled
	if !errors.As(c.Err(), &cancelled) || cancelled.Reason != "test" {
		t.Errorf("first cancel reason should win, got %v", c.Err())
	}
	select {
	case <-c.Done():
	default:
		t.Error("done channel should be closed")
	}
}

func TestControllerPauseResume(t *testing.T) {
	c := NewRunController()
	c.Pause()
	if !c.Paused() {
		t.Fatal("should be paused")
	}

	released := make(chan error, 1)
	go func() { released <- c.WaitIfPaused(context.Background()) }()

	select {
	case <-released:
		t.Fatal("waiter should block while paused")
	case <-time.After(20 * time.Millisecond):
	}

	c.Resume()
	select {
	case err := <-released:
		if err != nil {
			t.Errorf("resume should release cleanly, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released by resume")
	}
}

func TestControllerCancelReleasesPauseWaiters(t *testing.T) {
	c := NewRunController()
	c.Pause()

	released := make(chan error, 1)
	go func() { released <- c.WaitIfPaused(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	c.Cancel(nil)

	select {
	case err := <-released:
		if err == nil {
			t.Error("cancelled wait should return the cancellation reason")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released by cancel")
	}
}

func TestControllerApprovalRendezvous(t *testing.T) {
	c := NewRunController()

	// Decision before request: buffered.
	if !c.ResolveApproval("call-1", true) {
		t.Fatal("early decision should be accepted")
	}
	allowed, err := c.RequestApproval(context.Background(), "call-1")
	if err != nil || !allowed {
		t.Fatalf("buffered approval should resolve true, got %v %v", allowed, err)
	}

	// Request before decision.
	got := make(chan bool, 1)
	go func() {
		allowed, _ := c.RequestApproval(context.Background(), "call-2")
		got <- allowed
	}()
	time.Sleep(10 * time.Millisecond)
	if !c.ResolveApproval("call-2", false) {
		t.Fatal("decision should be accepted")
	}
	select {
	case allowed := <-got:
		if allowed {
			t.Error("denial should resolve false")
		}
	case <-time.After(time.Second):
		t.Fatal("approval never resolved")
	}
}

func TestControllerDoubleResolveRejected(t *testing.T) {
	c := NewRunController()
	if !c.ResolveApproval("call-1", true) {
		t.Fatal("first decision should be accepted")
	}
	if c.ResolveApproval("call-1", false) {
		t.Error("second decision for the same call should be rejected")
	}
}

func TestControllerCancelDeniesApprovals(t *testing.T) {
	c := NewRunController()
	got := make(chan bool, 1)
	go func() {
		allowed, _ := c.RequestApproval(context.Background(), "call-1")
		got <- allowed
	}()
	time.Sleep(10 * time.Millisecond)
	c.Cancel(nil)

	select {
	case allowed := <-got:
		if allowed {
			t.Error("cancel should deny pending approvals")
		}
	case <-time.After(time.Second):
		t.Fatal("approval never resolved after cancel")
	}

	// After cancel new requests deny immediately and decisions are refused.
	allowed, err := c.RequestApproval(context.Background(), "call-2")
	if err != nil || allowed {
		t.Errorf("post-cancel request should deny immediately, got %v %v", allowed, err)
	}
	if c.ResolveApproval("call-3", true) {
		t.Error("post-cancel decision should be rejected")
	}
}

func TestGuardToolExecution(t *testing.T) {
	c := NewRunController()
	if err := c.GuardToolExecution(context.Background(), "demo"); err != nil {
		t.Fatalf("guard should pass while running: %v", err)
	}

	c.Cancel(nil)
	err := c.GuardToolExecution(context.Background(), "demo")
	var toolCancelled *ErrToolCancelled
	if !errors.As(err, &toolCancelled) || toolCancelled.Tool != "demo" {
		t.Errorf("guard after cancel should fail with tool cancellation, got %v", err)
	}
}

func TestStopIsAdvisory(t *testing.T) {
	c := NewRunController()
	c.Stop()
	if !c.StopRequested() {
		t.Fatal("stop flag should be set")
	}
	if c.Cancelled() {
		t.Error("stop must not cancel")
	}
	if err := c.GuardToolExecution(context.Background(), "demo"); err != nil {
		t.Errorf("stop must not fail the guard: %v", err)
	}
}
