package security

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Answer is a human's response to an approval prompt. Trust means the
// user also granted session trust at the tool's risk level.
type Answer struct {
	Approved bool
	Trust    bool
}

type pendingRequest struct {
	ch       chan Answer
	resolved bool
}

// Broker correlates pending approval requests with out-of-band human
// answers. Each entry is backed by a buffered channel resolved exactly
// once; a timeout resolves it to denied so no loop blocks forever.
type Broker struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
	timeout time.Duration
}

func NewBroker(timeout time.Duration) *Broker {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Broker{
		pending: make(map[string]*pendingRequest),
		timeout: timeout,
	}
}

// Open registers a new pending request and returns its correlation id.
func (b *Broker) Open() string {
	id := uuid.NewString()
	b.mu.Lock()
	b.pending[id] = &pendingRequest{ch: make(chan Answer, 1)}
	b.mu.Unlock()
	return id
}

// Wait blocks until the request is resolved, the timeout fires, or ctx
// is cancelled. Timeout and cancellation fail closed. The entry is
// removed before returning; an answer that arrived before Wait started
// is still delivered because the channel is buffered.
func (b *Broker) Wait(ctx context.Context, id string) Answer {
	b.mu.Lock()
	req, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		return Answer{}
	}

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case ans := <-req.ch:
		return ans
	case <-timer.C:
		log.Printf("[approval] request %.8s timed out, denying", id)
		return Answer{}
	case <-ctx.Done():
		return Answer{}
	}
}

// Resolve fulfils a pending request. Only the first resolution counts;
// unknown or already-resolved ids return false.
func (b *Broker) Resolve(id string, ans Answer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.pending[id]
	if !ok || req.resolved {
		return false
	}
	req.resolved = true
	req.ch <- ans
	return true
}

// PendingCount reports how many requests await an answer.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
