package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RoomKind identifies what a room broadcasts.
type RoomKind string

const (
	RoomScoreSteal  RoomKind = "score-steal"
	RoomRelayQuiz   RoomKind = "relay-quiz"
	RoomGameWaiting RoomKind = "game-waiting"
)

var roomKinds = map[RoomKind]bool{
	RoomScoreSteal:  true,
	RoomRelayQuiz:   true,
	RoomGameWaiting: true,
}

// RoomKey addresses one room: every session/game gets its own room per kind.
type RoomKey struct {
	Kind RoomKind
	ID   uuid.UUID
}

// ClientMessage is the client->server frame. Event encodes verb and room
// kind, e.g. "subscribe:score-steal" or "score-steal:request-snapshot".
type ClientMessage struct {
	Event string    `json:"event"`
	ID    uuid.UUID `json:"id"`
}

// ServerMessage is the server->client frame, e.g.
// "score-steal:session-update" with a verbatim snapshot payload.
type ServerMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

const (
	verbSubscribe       = "subscribe"
	verbUnsubscribe     = "unsubscribe"
	verbRequestSnapshot = "request-snapshot"
)

// parseClientEvent splits a client event into verb and room kind.
// "subscribe:<kind>" and "unsubscribe:<kind>" put the verb first;
// "<kind>:request-snapshot" puts the kind first.
func parseClientEvent(event string) (verb string, kind RoomKind, err error) {
	parts := strings.SplitN(event, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed event %q", event)
	}
	switch parts[0] {
	case verbSubscribe, verbUnsubscribe:
		verb, kind = parts[0], RoomKind(parts[1])
	default:
		kind, verb = RoomKind(parts[0]), parts[1]
		if verb != verbRequestSnapshot {
			return "", "", fmt.Errorf("unknown event %q", event)
		}
	}
	if !roomKinds[kind] {
		return "", "", fmt.Errorf("unknown room kind %q", kind)
	}
	return verb, kind, nil
}

func sessionUpdateEvent(kind RoomKind) string  { return string(kind) + ":session-update" }
func attemptsUpdateEvent(kind RoomKind) string { return string(kind) + ":attempts-update" }
