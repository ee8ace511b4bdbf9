package quote

import (
	"context"
	"sync"
)

// Tracker orders one visitor's quote requests so the most recent wins. Each
// new request cancels the one before it, and a response is only used if no
// newer request has started since.
type Tracker struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// Begin starts a request, cancelling any request still in flight. The
// returned func must be called when the request finishes.
func (t *Tracker) Begin(ctx context.Context) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.seq++
	seq := t.seq
	t.cancel = cancel
	t.mu.Unlock()

	return ctx, seq, cancel
}

// Current reports whether seq is still the latest request.
func (t *Tracker) Current(seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return seq == t.seq
}
