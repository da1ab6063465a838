// Package broker fans change feed frames out across server instances.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("broker closed")

// Envelope is one feed frame and the users it must reach.
type Envelope struct {
	Recipients []uuid.UUID     `json:"recipients"`
	Frame      json.RawMessage `json:"frame"`
}

// Handler receives every envelope published by any instance.
type Handler func(Envelope)

type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe delivers envelopes to h until ctx is done or the broker is
	// closed.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

// Local delivers envelopes within the process. It is the broker of a single
// instance deployment and of tests.
type Local struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
	closed   bool
}

func NewLocal() *Local {
	return &Local{handlers: make(map[int]Handler)}
}

func (l *Local) Publish(_ context.Context, env Envelope) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	for _, h := range l.handlers {
		h(env)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, h Handler) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	id := l.next
	l.next++
	l.handlers[id] = h
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}()
	return nil
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.handlers = make(map[int]Handler)
	return nil
}
