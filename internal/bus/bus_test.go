package bus

import (
	"context"
	"testing"
	"time"
)

func TestSessionKey(t *testing.T) {
	m := InboundMessage{Channel: "telegram", ChatID: "42"}
	if got := m.SessionKey(); got != "telegram:42" {
		t.Errorf("SessionKey = %q", got)
	}
}

func TestDispatchOutbound(t *testing.T) {
	b := NewMessageBus(10)
	got := make(chan OutboundMessage, 1)
	b.SubscribeOutbound("telegram", func(msg OutboundMessage) {
		got <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "telegram", ChatID: "1", Content: "hi"}

	select {
	case msg := <-got:
		if msg.Content != "hi" {
			t.Errorf("content = %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("message not dispatched")
	}
}

func TestHasSubscriber(t *testing.T) {
	b := NewMessageBus(1)
	if b.HasSubscriber("telegram") {
		t.Error("no subscriber registered yet")
	}
	b.SubscribeOutbound("telegram", func(OutboundMessage) {})
	if !b.HasSubscriber("telegram") {
		t.Error("subscriber not visible")
	}
	if b.HasSubscriber("cron") {
		t.Error("unrelated channel reported as subscribed")
	}
}

func TestDispatchOutboundUnknownChannel(t *testing.T) {
	b := NewMessageBus(10)
	delivered := make(chan OutboundMessage, 2)
	b.SubscribeOutbound("telegram", func(msg OutboundMessage) {
		delivered <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	// A message for an unregistered channel is dropped, not fatal.
	b.Outbound <- OutboundMessage{Channel: "nowhere", Content: "lost"}
	b.Outbound <- OutboundMessage{Channel: "telegram", Content: "kept"}

	select {
	case msg := <-delivered:
		if msg.Content != "kept" {
			t.Errorf("content = %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("follow-up message not dispatched")
	}
}

func TestSubscribeReplaces(t *testing.T) {
	b := NewMessageBus(1)
	first := 0
	second := 0
	b.SubscribeOutbound("c", func(OutboundMessage) { first++ })
	b.SubscribeOutbound("c", func(OutboundMessage) { second++ })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "c"}
	time.Sleep(50 * time.Millisecond)

	if first != 0 || second != 1 {
		t.Errorf("first=%d second=%d, want 0/1", first, second)
	}
}
