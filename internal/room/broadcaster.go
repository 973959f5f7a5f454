package room

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"flickpick/internal/websocket"
	"flickpick/pkg/types"
)

// Broadcaster groups live connections by session code and delivers events
// to all of them, all but the sender, or a single connection. Delivery is
// at-most-once and fire-and-forget: a failed write is logged and skipped,
// never retried, and the failing connection's client resynchronizes on its
// next join.
type Broadcaster struct {
	registry *websocket.Registry
	log      zerolog.Logger
}

// NewBroadcaster creates a broadcaster over a connection registry.
func NewBroadcaster(registry *websocket.Registry) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		log:      log.With().Str("module", "room.broadcaster").Logger(),
	}
}

// ToRoom delivers an event to every live connection in the room.
func (b *Broadcaster) ToRoom(code string, event types.Event) {
	for _, conn := range b.registry.Connections(code) {
		b.deliver(code, conn, event)
	}
}

// ToRoomExcept delivers an event to every live connection in the room
// except the named one. Used where the sender already reflects the change
// locally.
func (b *Broadcaster) ToRoomExcept(code, connID string, event types.Event) {
	for _, conn := range b.registry.Connections(code) {
		if conn.ID() == connID {
			continue
		}
		b.deliver(code, conn, event)
	}
}

// ToConnection delivers an event to a single registered connection.
func (b *Broadcaster) ToConnection(connID string, event types.Event) {
	conn, ok := b.registry.Get(connID)
	if !ok {
		return
	}
	b.deliver("", conn, event)
}

// Error emits a notification:error event to one connection. Errors are
// never broadcast to the room.
func (b *Broadcaster) Error(connID, message string) {
	b.ToConnection(connID, types.Event{
		Type:    types.EventError,
		Payload: types.ErrorPayload{Message: message},
	})
}

func (b *Broadcaster) deliver(code string, conn *websocket.Connection, event types.Event) {
	if err := conn.WriteEvent(event); err != nil {
		b.log.Warn().
			Err(err).
			Str("event", event.Type).
			Str("room", code).
			Str("conn", conn.ID()).
			Msg("event delivery failed")
	}
}
