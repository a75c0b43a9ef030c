package model

import (
	"context"
	"fmt"
	"log"
)

// Router retries a completion across a fallback chain of model
// identifiers. Only total exhaustion surfaces an error; the engine
// adds no retries of its own on top.
type Router struct {
	client       Completer
	defaultModel string
	fallbacks    []string
}

func NewRouter(client Completer, defaultModel string, fallbacks []string) *Router {
	return &Router{client: client, defaultModel: defaultModel, fallbacks: fallbacks}
}

// Complete tries the requested (or default) model first, then each
// fallback in order.
func (r *Router) Complete(ctx context.Context, req Request) (*Response, error) {
	candidates := r.candidates(req.Model)

	var lastErr error
	for _, m := range candidates {
		req.Model = m
		resp, err := r.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Printf("[model] %s failed, trying next: %v", m, err)
	}
	return nil, fmt.Errorf("all models failed (tried %d): %w", len(candidates), lastErr)
}

func (r *Router) candidates(requested string) []string {
	first := requested
	if first == "" {
		first = r.defaultModel
	}
	out := []string{first}
	for _, m := range r.fallbacks {
		if m != "" && m != first {
			out = append(out, m)
		}
	}
	return out
}
