package timeutil

import (
	"context"
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	select {
	case <-c.After(5 * time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("After did not fire")
	}
	if c.Since(start) < 5*time.Millisecond {
		t.Errorf("Since = %v, want >= 5ms", c.Since(start))
	}
}

func TestMockClockAdvance(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	ch := c.After(time.Second)
	if c.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", c.Pending())
	}

	c.Advance(500 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("fired before deadline")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case got := <-ch:
		if !got.Equal(base.Add(time.Second)) {
			t.Errorf("fired at %v, want %v", got, base.Add(time.Second))
		}
	default:
		t.Fatal("did not fire at deadline")
	}

	if c.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", c.Pending())
	}
	if got := c.Since(base); got != time.Second {
		t.Errorf("Since = %v, want 1s", got)
	}
}

func TestMockClockAfterNonPositive(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestMockClockSet(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	target := time.Unix(100, 0)
	c.Set(target)
	if !c.Now().Equal(target) {
		t.Errorf("Now = %v, want %v", c.Now(), target)
	}
}

func TestSleep(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))

	done := make(chan error, 1)
	go func() { done <- Sleep(context.Background(), c, time.Second) }()

	// Wait for the sleeper to register before advancing.
	deadline := time.Now().Add(time.Second)
	for c.Pending() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	c.Advance(time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Sleep returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestSleepCancelled(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, c, time.Hour); err != context.Canceled {
		t.Errorf("Sleep = %v, want context.Canceled", err)
	}
	if err := Sleep(ctx, c, 0); err != context.Canceled {
		t.Errorf("Sleep(0) = %v, want context.Canceled", err)
	}
}
