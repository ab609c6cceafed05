package mcproto

import "github.com/google/uuid"

// Event is emitted by a Session's read loop. The channel is closed after a
// Disconnected event.
type Event interface{ isEvent() }

// JoinedGame is sent once the server puts the client into the world.
type JoinedGame struct {
	EntityID int32
}

// Spawned is sent for every absolute position update; the first one is the
// spawn signal.
type Spawned struct {
	X, Y, Z float64
}

// ChatReceived carries a chat line as plain text.
type ChatReceived struct {
	Text string
}

// RosterChanged is sent when the player list changes.
type RosterChanged struct {
	Added   []string
	Removed []uuid.UUID
}

// Disconnected is the last event of a session.
type Disconnected struct {
	Reason string
	Err    error
}

func (JoinedGame) isEvent()    {}
func (Spawned) isEvent()       {}
func (ChatReceived) isEvent()  {}
func (RosterChanged) isEvent() {}
func (Disconnected) isEvent()  {}
