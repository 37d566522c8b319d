// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

var testStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvances(t *testing.T) {
	c := Fake(testStart)
	if got := c.Now(); !got.Equal(testStart) {
		t.Errorf("Now = %v, want %v", got, testStart)
	}

	c.Advance(90 * time.Second)
	want := testStart.Add(90 * time.Second)
	if got := c.Now(); !got.Equal(want) {
		t.Errorf("Now after Advance = %v, want %v", got, want)
	}
}

func TestFakeAfterFiresAtDeadline(t *testing.T) {
	c := Fake(testStart)
	ch := c.After(5 * time.Second)

	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case fired := <-ch:
		want := testStart.Add(5 * time.Second)
		if !fired.Equal(want) {
			t.Errorf("fire time = %v, want %v", fired, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	c := Fake(testStart)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeSleepBlocksUntilAdvance(t *testing.T) {
	c := Fake(testStart)
	done := make(chan struct{})

	go func() {
		c.Sleep(3 * time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	select {
	case <-done:
		t.Fatal("Sleep returned before the clock advanced")
	default:
	}

	c.Advance(3 * time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeAfterFuncRunsOnAdvance(t *testing.T) {
	c := Fake(testStart)
	var calls atomic.Int32

	c.AfterFunc(2*time.Second, func() { calls.Add(1) })

	c.Advance(time.Second)
	if got := calls.Load(); got != 0 {
		t.Errorf("callback ran %d times before deadline", got)
	}

	c.Advance(time.Second)
	if got := calls.Load(); got != 1 {
		t.Errorf("callback ran %d times, want 1", got)
	}

	// A fired one-shot must not fire again.
	c.Advance(time.Minute)
	if got := calls.Load(); got != 1 {
		t.Errorf("callback ran %d times after extra Advance, want 1", got)
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	c := Fake(testStart)
	var calls atomic.Int32

	timer := c.AfterFunc(2*time.Second, func() { calls.Add(1) })
	if !timer.Stop() {
		t.Error("Stop on a pending timer = false, want true")
	}
	if timer.Stop() {
		t.Error("second Stop = true, want false")
	}

	c.Advance(time.Minute)
	if got := calls.Load(); got != 0 {
		t.Errorf("stopped callback ran %d times", got)
	}
}

func TestFakeTickerFiresPerInterval(t *testing.T) {
	c := Fake(testStart)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	ticks := 0
	for range 3 {
		c.Advance(time.Second)
		select {
		case <-ticker.C:
			ticks++
		default:
			t.Fatalf("no tick after advance %d", ticks+1)
		}
	}
	if ticks != 3 {
		t.Errorf("ticks = %d, want 3", ticks)
	}
}

func TestFakeTickerStopSilences(t *testing.T) {
	c := Fake(testStart)
	ticker := c.NewTicker(time.Second)
	ticker.Stop()

	c.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}

func TestFakeWaitForTimersUnblocks(t *testing.T) {
	c := Fake(testStart)
	registered := make(chan struct{})

	go func() {
		<-c.After(time.Hour)
	}()
	go func() {
		c.WaitForTimers(1)
		close(registered)
	}()

	select {
	case <-registered:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForTimers never observed the registered timer")
	}

	if got := c.PendingCount(); got != 1 {
		t.Errorf("PendingCount = %d, want 1", got)
	}
}

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	c := Fake(testStart)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(10 * time.Second)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("fire order = %v, want [1 2 3]", order)
	}
}

func TestRealClockBasics(t *testing.T) {
	c := Real()
	before := time.Now()
	got := c.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("Real Now = %v outside [%v, %v]", got, before, after)
	}

	select {
	case <-c.After(time.Millisecond):
	case <-time.After(5 * time.Second):
		t.Fatal("Real After(1ms) did not fire")
	}
}
