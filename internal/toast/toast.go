// Package toast queues short notifications shown to a visitor on their next
// page render.
package toast

import (
	"sync"

	"github.com/google/uuid"
)

type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Warning Kind = "warning"
)

type Toast struct {
	ID      string
	Kind    Kind
	Title   string
	Message string
}

// Queue holds pending toasts. It is safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	toasts []Toast
}

func (q *Queue) Add(kind Kind, title, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.toasts = append(q.toasts, Toast{ID: uuid.NewString(), Kind: kind, Title: title, Message: message})
}

func (q *Queue) Success(title, message string) { q.Add(Success, title, message) }
func (q *Queue) Error(title, message string)   { q.Add(Error, title, message) }
func (q *Queue) Warning(title, message string) { q.Add(Warning, title, message) }

// Drain returns the pending toasts and empties the queue.
func (q *Queue) Drain() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.toasts
	q.toasts = nil
	return out
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.toasts = nil
}
