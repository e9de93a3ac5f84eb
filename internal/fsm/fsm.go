package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateCountdown State = "countdown"
	StateRecording State = "recording"
)

const (
	EventStreamReady Event = "stream-ready"
	EventArm         Event = "arm"
	EventGo          Event = "go"
	EventStop        Event = "stop"
	EventAbort       Event = "abort"
	EventStreamLost  Event = "stream-lost"
)

func Transition(current State, event Event) (State, error) {
	if event == EventStreamLost {
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStreamReady:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventArm:
			return StateCountdown, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCountdown:
		switch event {
		case EventGo:
			return StateRecording, nil
		case EventAbort:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateListening, nil
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
