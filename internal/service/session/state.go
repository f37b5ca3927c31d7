package session

import "fmt"

// State is the controller's activation state.
type State int

const (
	StateInactive State = iota
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Reasons a session became inactive.
const (
	ReasonStopped          = "stopped"
	ReasonDeviceLost       = "device_lost"
	ReasonRecognitionError = "recognition_error"
	ReasonRecognizerEnded  = "recognizer_ended"
	ReasonFailed           = "failed"
)
