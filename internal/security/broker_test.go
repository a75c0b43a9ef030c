package security

import (
	"context"
	"testing"
	"time"
)

func TestBrokerResolve(t *testing.T) {
	b := NewBroker(5 * time.Second)
	id := b.Open()

	go func() {
		if !b.Resolve(id, Answer{Approved: true, Trust: true}) {
			t.Error("Resolve returned false for a pending request")
		}
	}()

	ans := b.Wait(context.Background(), id)
	if !ans.Approved || !ans.Trust {
		t.Errorf("answer = %+v, want approved with trust", ans)
	}
	if b.PendingCount() != 0 {
		t.Error("entry not removed after Wait")
	}
}

func TestBrokerResolveBeforeWait(t *testing.T) {
	b := NewBroker(5 * time.Second)
	id := b.Open()

	// The buffered channel holds an answer that arrives early.
	if !b.Resolve(id, Answer{Approved: true}) {
		t.Fatal("Resolve failed")
	}
	if ans := b.Wait(context.Background(), id); !ans.Approved {
		t.Errorf("answer = %+v, want approved", ans)
	}
}

func TestBrokerTimeoutDenies(t *testing.T) {
	b := NewBroker(50 * time.Millisecond)
	id := b.Open()

	start := time.Now()
	ans := b.Wait(context.Background(), id)
	if ans.Approved {
		t.Error("timed-out request must be denied")
	}
	if time.Since(start) > time.Second {
		t.Error("timeout fired too late")
	}
	if b.PendingCount() != 0 {
		t.Error("timed-out entry should be removed")
	}
}

func TestBrokerContextCancelDenies(t *testing.T) {
	b := NewBroker(time.Minute)
	id := b.Open()

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()

	if ans := b.Wait(ctx, id); ans.Approved {
		t.Error("cancelled request must be denied")
	}
}

func TestBrokerResolveOnlyOnce(t *testing.T) {
	b := NewBroker(time.Second)
	id := b.Open()

	if !b.Resolve(id, Answer{Approved: true}) {
		t.Fatal("first Resolve failed")
	}
	if b.Resolve(id, Answer{Approved: false}) {
		t.Error("second Resolve must be rejected")
	}
	if b.Resolve("no-such-id", Answer{}) {
		t.Error("unknown id must be rejected")
	}

	if ans := b.Wait(context.Background(), id); !ans.Approved {
		t.Error("the first answer should win")
	}
}

func TestBrokerWaitUnknownID(t *testing.T) {
	b := NewBroker(time.Second)
	if ans := b.Wait(context.Background(), "missing"); ans.Approved {
		t.Error("unknown id must be denied")
	}
}
