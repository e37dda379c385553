package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition rejects moves the connection state machine forbids.
var ErrInvalidTransition = errors.New("invalid connection state transition")

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

var allStates = []ConnectionState{StateDisconnected, StateConnecting, StateConnected, StateError}

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Dispatchable reports whether requests may be sent in this state.
func (s ConnectionState) Dispatchable() bool {
	return s != StateDisconnected
}

var transitions = map[ConnectionState][]ConnectionState{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateError, StateDisconnected},
	StateConnected:    {StateError, StateDisconnected, StateConnecting},
	StateError:        {StateConnecting, StateConnected, StateDisconnected},
}

// CanTransition allows self-transitions, which refresh the last error.
func CanTransition(from, to ConnectionState) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type providerState struct {
	state     ConnectionState
	lastError string
	changedAt time.Time
}

func transitionError(id string, from, to ConnectionState) error {
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, from, to)
}

func stateNames() []string {
	out := make([]string, len(allStates))
	for i, s := range allStates {
		out[i] = s.String()
	}
	return out
}
