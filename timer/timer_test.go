package timer

import (
	"testing"
	"time"
)

func TestPollFiresDueEventsInDeadlineOrder(t *testing.T) {
	s := New(nil)
	base := time.Unix(1000, 0)
	var order []string

	s.Schedule(base.Add(3*time.Second), func() { order = append(order, "c") })
	s.Schedule(base.Add(1*time.Second), func() { order = append(order, "a") })
	s.Schedule(base.Add(2*time.Second), func() { order = append(order, "b") })

	s.Poll(base.Add(5 * time.Second))

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestPollOnlyFiresDueEvents(t *testing.T) {
	s := New(nil)
	base := time.Unix(1000, 0)
	fired := 0
	s.Schedule(base.Add(10*time.Second), func() { fired++ })

	s.Poll(base.Add(5 * time.Second))
	if fired != 0 {
		t.Fatalf("fired = %d, want 0 before deadline", fired)
	}
	s.Poll(base.Add(10 * time.Second))
	if fired != 1 {
		t.Fatalf("fired = %d, want 1 at deadline", fired)
	}
}

func TestCancelIsIdempotentAndPreventsFiring(t *testing.T) {
	s := New(nil)
	base := time.Unix(1000, 0)
	fired := false
	h := s.Schedule(base.Add(time.Second), func() { fired = true })

	s.Cancel(h)
	s.Cancel(h) // idempotent
	s.Poll(base.Add(2 * time.Second))

	if fired {
		t.Fatalf("cancelled event fired")
	}
}

func TestCancelUnknownHandleIsNoop(t *testing.T) {
	s := New(nil)
	s.Cancel(Handle{id: 999})
}

func TestPendingAndNextDeadline(t *testing.T) {
	s := New(nil)
	base := time.Unix(1000, 0)
	if _, ok := s.NextDeadline(); ok {
		t.Fatalf("expected no pending deadline on empty scheduler")
	}

	h1 := s.Schedule(base.Add(5*time.Second), func() {})
	s.Schedule(base.Add(1*time.Second), func() {})

	if got := s.Pending(); got != 2 {
		t.Fatalf("Pending() = %d, want 2", got)
	}
	d, ok := s.NextDeadline()
	if !ok || !d.Equal(base.Add(1*time.Second)) {
		t.Fatalf("NextDeadline() = %v, %v, want %v, true", d, ok, base.Add(time.Second))
	}

	s.Cancel(h1)
	if got := s.Pending(); got != 1 {
		t.Fatalf("Pending() after cancel = %d, want 1", got)
	}
}

func TestCallbackSchedulingNewEventDuringPoll(t *testing.T) {
	s := New(nil)
	base := time.Unix(1000, 0)
	var order []string
	s.Schedule(base.Add(time.Second), func() {
		order = append(order, "first")
		s.Schedule(base.Add(time.Second), func() { order = append(order, "chained") })
	})

	s.Poll(base.Add(2 * time.Second))

	want := []string{"first", "chained"}
	if len(order) != len(want) || order[0] != want[0] || order[1] != want[1] {
		t.Fatalf("order = %v, want %v", order, want)
	}
}
