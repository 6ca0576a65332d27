// Package fsm defines the capture-session lifecycle states and their legal transitions.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle               State = "idle"
	StateAwaitingPermission State = "awaiting_permission"
	StateRecording          State = "recording"
	StateFinalizing         State = "finalizing"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
	StateCancelled          State = "cancelled"
)

const (
	EventStart      Event = "start"
	EventGranted    Event = "granted"
	EventDenied     Event = "denied"
	EventStop       Event = "stop"
	EventMaxReached Event = "max_reached"
	EventCancel     Event = "cancel"
	EventFail       Event = "fail"
	EventAssembled  Event = "assembled"
	EventEmpty      Event = "empty"
)

// IsTerminal reports whether no further automatic transition leaves state.
func IsTerminal(state State) bool {
	switch state {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a session is in flight.
func IsActive(state State) bool {
	switch state {
	case StateAwaitingPermission, StateRecording, StateFinalizing:
		return true
	default:
		return false
	}
}

func Transition(current State, event Event) (State, error) {
	if event == EventFail && IsActive(current) {
		return StateFailed, nil
	}

	switch current {
	case StateIdle, StateCompleted, StateFailed, StateCancelled:
		switch event {
		case EventStart:
			return StateAwaitingPermission, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaitingPermission:
		switch event {
		case EventGranted:
			return StateRecording, nil
		case EventDenied:
			return StateFailed, nil
		case EventCancel:
			return StateCancelled, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStop, EventMaxReached:
			return StateFinalizing, nil
		case EventCancel:
			return StateCancelled, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFinalizing:
		switch event {
		case EventAssembled:
			return StateCompleted, nil
		case EventEmpty:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
