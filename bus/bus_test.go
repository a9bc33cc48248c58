package bus

import "testing"

func TestSubscribeAndEmit(t *testing.T) {
	b := New[int]()
	var got []int
	b.Subscribe(func(v int) { got = append(got, v) })
	b.Subscribe(func(v int) { got = append(got, v*10) })

	b.Emit(1)
	b.Emit(2)

	want := []int{1, 10, 2, 20}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestOrderIsSubscriptionOrder(t *testing.T) {
	b := New[string]()
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		b.Subscribe(func(string) { order = append(order, name) })
	}
	b.Emit("x")
	want := []string{"a", "b", "c"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDisconnectStopsFutureEmits(t *testing.T) {
	b := New[int]()
	calls := 0
	sub := b.Subscribe(func(int) { calls++ })
	b.Emit(1)
	b.Disconnect(sub)
	b.Emit(2)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestSubscribeDuringEmitSkipsCurrentEvent(t *testing.T) {
	b := New[int]()
	var second bool
	b.Subscribe(func(int) {
		b.Subscribe(func(int) { second = true })
	})
	b.Emit(1)
	if second {
		t.Fatalf("subscriber added mid-emit fired on the same event")
	}
	b.Emit(2)
	if !second {
		t.Fatalf("subscriber added mid-emit did not fire on the next event")
	}
}

func TestDisconnectDuringEmitNotRevisited(t *testing.T) {
	b := New[int]()
	var subB Subscription
	calls := 0
	b.Subscribe(func(int) { b.Disconnect(subB) })
	subB = b.Subscribe(func(int) { calls++ })

	b.Emit(1)
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 (subB disconnected before its turn)", calls)
	}
	b.Emit(2)
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 (subB stays disconnected)", calls)
	}
}

func TestReentrantEmit(t *testing.T) {
	inner := New[int]()
	outer := New[int]()
	var seen []int
	inner.Subscribe(func(v int) { seen = append(seen, v) })
	outer.Subscribe(func(v int) {
		inner.Emit(v * 2)
	})
	outer.Emit(5)
	if len(seen) != 1 || seen[0] != 10 {
		t.Fatalf("seen = %v, want [10]", seen)
	}
}
