package model

// Origin tells where a view entry came from.
type Origin int

const (
	// Durable entries come from a store snapshot.
	Durable Origin = iota
	// Pending entries were appended live (broker delivery or local send) and
	// are dropped by the next snapshot unless it contains them.
	Pending
)

func (o Origin) String() string {
	switch o {
	case Durable:
		return "durable"
	case Pending:
		return "pending"
	}
	return "unknown"
}

// Entry is one row of a conversation view.
type Entry struct {
	Message
	Origin Origin `json:"origin"`
	// Key is the store document key. Empty for pending entries.
	Key string `json:"key,omitempty"`
}

// DurableEntry wraps a record delivered by the store.
func DurableEntry(key string, m Message) Entry {
	return Entry{Message: m, Origin: Durable, Key: key}
}

// PendingEntry wraps a record that has not been confirmed by a snapshot.
func PendingEntry(m Message) Entry {
	return Entry{Message: m, Origin: Pending}
}
