package interfaces

import (
	"flickpick/pkg/types"
)

// Broadcaster delivers events to the live connections of a room. Delivery
// is fire-and-forget and at-most-once: a disconnected client misses events
// and resynchronizes by rejoining.
type Broadcaster interface {
	// ToRoom delivers an event to every live connection in the room.
	ToRoom(code string, event types.Event)
	// ToRoomExcept delivers an event to every live connection in the room
	// except the named one.
	ToRoomExcept(code, connID string, event types.Event)
	// ToConnection delivers an event to a single connection.
	ToConnection(connID string, event types.Event)
	// Error emits a notification:error event to a single connection.
	Error(connID, message string)
}
