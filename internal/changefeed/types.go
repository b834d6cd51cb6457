package changefeed

import (
	"context"
	"encoding/json"
)

// Status is the connection state of one subscription, surfaced to callers
// as a non-blocking indicator.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
	StatusClosed       Status = "CLOSED"
)

// EventType is the row-level change kind.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is one row-level change delivered to callbacks. Old is empty for
// inserts, New is empty for deletes.
type Event struct {
	Table string          `json:"table"`
	Type  EventType       `json:"type"`
	Old   json.RawMessage `json:"old,omitempty"`
	New   json.RawMessage `json:"new,omitempty"`
}

// Callbacks are invoked per event type. Nil callbacks are skipped. The
// bridge never mutates the store; dispatching these is its only side effect.
type Callbacks struct {
	OnInsert func(Event)
	OnUpdate func(Event)
	OnDelete func(Event)
}

// Filter narrows a subscription to rows whose column equals the value,
// matched against the new row (or the old row for deletes).
type Filter struct {
	Column string
	Value  string
}

// Notification is one raw message from the transport. Payload carries the
// JSON-encoded Event.
type Notification struct {
	Payload string
}

// Stream is one live notification feed. Events closes when the connection
// fails; Err then reports why.
type Stream interface {
	Events() <-chan Notification
	Err() error
	Close() error
}

// Transport opens notification streams. The production implementation
// LISTENs on a Postgres channel fed by row triggers.
type Transport interface {
	Listen(ctx context.Context, channel string) (Stream, error)
}
