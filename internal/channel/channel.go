// Package channel derives the canonical conversation key, durable log path
// and broker topic for a pair of participants.
package channel

import (
	"errors"
	"strings"

	"github.com/johndosdos/conecta/internal/broker"
)

const (
	// PublicSentinel is the target reference clients use for the public room.
	PublicSentinel = "GLOBAL_CHAT_ID"

	// PublicKey is the fixed key of the public room.
	PublicKey Key = "global_chat"

	// Delimiter joins the two identities of a private key. Identities
	// containing it are rejected so keys stay unambiguous.
	Delimiter = "_"

	pathPrefix = "chats/"
)

var (
	ErrNoActiveSession = errors.New("channel: no authenticated identity")
	ErrInvalidTarget   = errors.New("channel: missing or malformed target")
	ErrInvalidIdentity = errors.New("channel: malformed self identity")
)

// Key identifies one conversation.
type Key string

// Path is the durable store log path for the conversation.
func (k Key) Path() string { return pathPrefix + string(k) }

func (k Key) String() string { return string(k) }

// Resolved is the result of Resolve. It is computed once per session.
type Resolved struct {
	Key   Key
	Path  string
	Topic string
}

// IsPublic reports whether r is the public room.
func (r Resolved) IsPublic() bool { return r.Key == PublicKey }

// Public returns the fixed resolution of the public room.
func Public() Resolved {
	return Resolved{
		Key:   PublicKey,
		Path:  PublicKey.Path(),
		Topic: broker.TopicGlobal,
	}
}

// Resolve computes the conversation between self and target. The result is
// independent of which side initiated: Resolve(a, b) == Resolve(b, a).
// An empty self means no authenticated identity.
func Resolve(self, target string) (Resolved, error) {
	if target == PublicSentinel {
		return Public(), nil
	}

	if self == "" {
		return Resolved{}, ErrNoActiveSession
	}
	if strings.TrimSpace(target) == "" {
		return Resolved{}, ErrInvalidTarget
	}
	if strings.Contains(target, Delimiter) {
		return Resolved{}, ErrInvalidTarget
	}
	if strings.Contains(self, Delimiter) {
		return Resolved{}, ErrInvalidIdentity
	}

	lo, hi := self, target
	if hi < lo {
		lo, hi = hi, lo
	}
	key := Key(lo + Delimiter + hi)

	return Resolved{
		Key:   key,
		Path:  key.Path(),
		Topic: broker.TopicChatPrefix + string(key),
	}, nil
}
