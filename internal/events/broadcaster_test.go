package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, sub <-chan Event) Event {
	t.Helper()
	select {
	case e := <-sub:
		return e
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for broadcast event")
		return Event{}
	}
}

func TestSubscriberCountTracksSubscriptions(t *testing.T) {
	CloseAllSubscribers()

	a := Subscribe()
	b := Subscribe()
	if n := SubscriberCount(); n != 2 {
		t.Fatalf("subscribers = %d, want 2", n)
	}

	Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Error("unsubscribed channel should be closed")
	}
	if n := SubscriberCount(); n != 1 {
		t.Errorf("subscribers = %d, want 1", n)
	}

	Unsubscribe(b)
	if n := SubscriberCount(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}

func TestEverySubscriberReceivesEvents(t *testing.T) {
	CloseAllSubscribers()
	subs := []<-chan Event{Subscribe(), Subscribe()}
	defer CloseAllSubscribers()

	Emit("info", "step.validated", "", map[string]interface{}{"object_id": "commutateur"})

	for i, sub := range subs {
		e := receive(t, sub)
		if e.Name != "step.validated" || e.Fields["object_id"] != "commutateur" {
			t.Errorf("subscriber %d got %s %v", i, e.Name, e.Fields)
		}
	}
}

func TestCloseAllSubscribers(t *testing.T) {
	subs := []<-chan Event{Subscribe(), Subscribe(), Subscribe()}
	CloseAllSubscribers()

	for i, sub := range subs {
		if _, ok := <-sub; ok {
			t.Errorf("subscriber %d still open", i)
		}
	}
	if n := SubscriberCount(); n != 0 {
		t.Errorf("subscribers = %d after close", n)
	}
}

func TestRecentEvents(t *testing.T) {
	Clear()
	for i := 0; i < 10; i++ {
		Emit("info", "step.cued", "", map[string]interface{}{"i": i})
	}

	tests := []struct {
		n     int
		want  int
		first int
	}{
		{n: 5, want: 5, first: 5},
		{n: 100, want: 10, first: 0},
		{n: 0, want: 10, first: 0},
	}
	for _, tt := range tests {
		got := RecentEvents(tt.n)
		if len(got) != tt.want {
			t.Errorf("RecentEvents(%d) returned %d events, want %d", tt.n, len(got), tt.want)
			continue
		}
		if got[0].Fields["i"] != tt.first {
			t.Errorf("RecentEvents(%d) starts at i=%v, want %d", tt.n, got[0].Fields["i"], tt.first)
		}
	}
}

func TestObserveIsSynchronous(t *testing.T) {
	var seen []string
	remove := Observe(func(e Event) { seen = append(seen, e.Name) })

	Emit("info", "step.validated", "", nil)
	Emit("info", "sequence.completed", "", nil)
	if len(seen) != 2 || seen[0] != "step.validated" || seen[1] != "sequence.completed" {
		t.Errorf("observed %v", seen)
	}

	remove()
	Emit("info", "step.validated", "", nil)
	if len(seen) != 2 {
		t.Errorf("removed observer still called: %v", seen)
	}
}
