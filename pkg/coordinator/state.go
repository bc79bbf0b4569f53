package coordinator

import "fmt"

// State is the lifecycle position of the coordinator.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateFinalizing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var transitions = map[State][]State{
	StateIdle:       {StateSending},
	StateSending:    {StateStreaming, StateError},
	StateStreaming:  {StateFinalizing, StateError},
	StateFinalizing: {StateIdle},
	StateError:      {StateIdle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateObserver is called after every state change, outside the coordinator lock.
type StateObserver func(from, to State)
