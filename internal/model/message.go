// Package model defines data structure.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrMalformedRecord = errors.New("model: malformed record")

// Message holds information about a single message. It is the document
// stored in the durable log and is never mutated once built.
type Message struct {
	SenderID  string `json:"senderId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// NewMessage builds a record stamped with now.
func NewMessage(senderID, text string, now time.Time) Message {
	return Message{
		SenderID:  senderID,
		Text:      text,
		Timestamp: now.UnixMilli(),
	}
}

// Time returns the timestamp as a time.Time.
func (m Message) Time() time.Time { return time.UnixMilli(m.Timestamp) }

// Encode returns the document form of m.
func (m Message) Encode() ([]byte, error) {
	p, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("could not encode message to JSON: %w", err)
	}
	return p, nil
}

// DecodeMessage parses one stored document. Anything that is not an object
// with a sender id wraps ErrMalformedRecord.
func DecodeMessage(p []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(p, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if m.SenderID == "" {
		return Message{}, fmt.Errorf("%w: missing senderId", ErrMalformedRecord)
	}
	return m, nil
}
