// Package store is the durable channel: an append-only, per-path ordered log
// whose subscribers receive the full log on every change.
package store

import (
	"context"

	"github.com/johndosdos/conecta/internal/model"
)

// Document is one raw entry of a log, in store order. Data is decoded by the
// reader so one corrupt entry never hides the rest.
type Document struct {
	Key  string
	Data []byte
}

// Store persists and observes message logs.
type Store interface {
	// Append pushes m to the end of the log at path and returns its key.
	Append(ctx context.Context, path string, m model.Message) (string, error)

	// Subscribe delivers the full log at path once immediately and again after
	// every change, on a goroutine owned by the store. onError is called at
	// most once; the subscription delivers nothing after it.
	Subscribe(ctx context.Context, path string, onSnapshot func([]Document), onError func(error)) (Subscription, error)
}

// Subscription is a live observation of one log.
type Subscription interface {
	// Cancel stops delivery. It is safe to call more than once.
	Cancel() error
}
