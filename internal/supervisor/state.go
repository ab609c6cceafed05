package supervisor

import "time"

type State string

const (
	StateOffline       State = "offline"
	StateConnecting    State = "connecting"
	StateLoggedIn      State = "logged_in"
	StateReady         State = "ready"
	StateDisconnecting State = "disconnecting"
)

var allStates = []State{StateOffline, StateConnecting, StateLoggedIn, StateReady, StateDisconnecting}

// Status is a point-in-time copy of the supervisor state.
type Status struct {
	State       State     `json:"state"`
	Since       time.Time `json:"since"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
	Epoch       uint64    `json:"epoch"`
	LastError   string    `json:"last_error,omitempty"`
	// ReadyVia is "spawn" or "probe" once Ready.
	ReadyVia string `json:"ready_via,omitempty"`
}
