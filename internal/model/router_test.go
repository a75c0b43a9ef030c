package model

import (
	"context"
	"errors"
	"testing"
)

type scriptedCompleter struct {
	calls   []string
	failOn  map[string]bool
	content string
}

func (s *scriptedCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	s.calls = append(s.calls, req.Model)
	if s.failOn[req.Model] {
		return nil, errors.New("provider error")
	}
	return &Response{Content: s.content}, nil
}

func TestRouterUsesDefaultFirst(t *testing.T) {
	c := &scriptedCompleter{content: "hi"}
	r := NewRouter(c, "main-model", []string{"backup-model"})

	resp, err := r.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hi" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(c.calls) != 1 || c.calls[0] != "main-model" {
		t.Errorf("calls = %v, want [main-model]", c.calls)
	}
}

func TestRouterFallsBack(t *testing.T) {
	c := &scriptedCompleter{
		content: "recovered",
		failOn:  map[string]bool{"main-model": true, "second": true},
	}
	r := NewRouter(c, "main-model", []string{"second", "third"})

	resp, err := r.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "recovered" {
		t.Errorf("content = %q", resp.Content)
	}
	want := []string{"main-model", "second", "third"}
	if len(c.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", c.calls, want)
	}
	for i := range want {
		if c.calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, c.calls[i], want[i])
		}
	}
}

func TestRouterExhaustionErrors(t *testing.T) {
	c := &scriptedCompleter{failOn: map[string]bool{"a": true, "b": true}}
	r := NewRouter(c, "a", []string{"b"})

	if _, err := r.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error after exhausting the chain")
	}
}

func TestRouterRequestedModelOverridesDefault(t *testing.T) {
	c := &scriptedCompleter{content: "ok"}
	r := NewRouter(c, "default", []string{"special"})

	if _, err := r.Complete(context.Background(), Request{Model: "special"}); err != nil {
		t.Fatal(err)
	}
	// The requested model must come first and not be retried twice.
	if len(c.calls) != 1 || c.calls[0] != "special" {
		t.Errorf("calls = %v, want [special]", c.calls)
	}
}
