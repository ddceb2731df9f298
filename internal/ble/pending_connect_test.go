package ble

import (
	"errors"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		if got := backoffDelay(i, connectRetryMax); got != w {
			t.Errorf("backoffDelay(%d, %d) = %v, want %v", i, connectRetryMax, got, w)
		}
	}
	if got := backoffDelay(100, 30); got != 30*time.Second {
		t.Errorf("backoffDelay(100, 30) = %v, want 30s", got)
	}
}

// instantWait records requested delays and fires immediately.
func instantWait(delays *[]time.Duration) func(time.Duration) <-chan time.Time {
	return func(d time.Duration) <-chan time.Time {
		*delays = append(*delays, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
}

func TestPendingConnectBacksOffUntilSuccess(t *testing.T) {
	var delays []time.Duration
	var failures []int
	dials := 0
	ok := pendingConnect(make(chan struct{}), instantWait(&delays),
		func() error {
			dials++
			if dials < 4 {
				return errors.New("device not found")
			}
			return nil
		},
		func(attempt int, _ error) { failures = append(failures, attempt) },
	)

	if !ok {
		t.Fatal("pendingConnect() = false, want true")
	}
	if dials != 4 {
		t.Errorf("dials = %d, want 4", dials)
	}
	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(wantDelays) {
		t.Fatalf("delays = %v, want %v", delays, wantDelays)
	}
	for i := range wantDelays {
		if delays[i] != wantDelays[i] {
			t.Errorf("delays[%d] = %v, want %v", i, delays[i], wantDelays[i])
		}
	}
	if len(failures) != 3 || failures[0] != 1 || failures[2] != 3 {
		t.Errorf("failures = %v, want [1 2 3]", failures)
	}
}

func TestPendingConnectFirstAttemptImmediate(t *testing.T) {
	var delays []time.Duration
	ok := pendingConnect(make(chan struct{}), instantWait(&delays),
		func() error { return nil },
		func(int, error) { t.Error("failed called on success") },
	)
	if !ok || len(delays) != 0 {
		t.Errorf("pendingConnect() = %v with delays %v, want true with none", ok, delays)
	}
}

func TestPendingConnectStops(t *testing.T) {
	stop := make(chan struct{})
	dialed := make(chan struct{}, 1)
	dials := 0
	never := func(time.Duration) <-chan time.Time { return nil }

	done := make(chan bool)
	go func() {
		done <- pendingConnect(stop, never,
			func() error {
				dials++
				dialed <- struct{}{}
				return errors.New("gone")
			},
			func(int, error) {},
		)
	}()

	<-dialed
	close(stop)
	select {
	case ok := <-done:
		if ok {
			t.Error("pendingConnect() = true after stop, want false")
		}
	case <-time.After(time.Second):
		t.Fatal("pendingConnect did not return after stop")
	}
	if dials != 1 {
		t.Errorf("dials = %d, want 1", dials)
	}
}
