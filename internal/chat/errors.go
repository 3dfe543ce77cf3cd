// Package chat is the dual-channel delivery core: one conversation session
// sends through the durable store and the broker, and merges both receive
// paths into a single view.
package chat

import "errors"

var (
	// ErrPersistFailed wraps a failed durable append. The message was not
	// sent; the caller may resubmit it.
	ErrPersistFailed = errors.New("chat: durable append failed")

	// ErrTransientUnavailable marks a broker failure. It is logged, never
	// returned from Send.
	ErrTransientUnavailable = errors.New("chat: broker unavailable")

	ErrRateLimited   = errors.New("chat: sending too fast")
	ErrSessionClosed = errors.New("chat: session closed")
)
