package arbiter

import "github.com/pkg/errors"

// Mode is who holds control of the arm.
type Mode int

const (
	// Automatic serves GoTo requests. It is the initial mode.
	Automatic Mode = iota
	// Manual gives the operator exclusive control.
	Manual
	// Stopped is terminal: the arbiter has shut down.
	Stopped
)

func (m Mode) String() string {
	switch m {
	case Automatic:
		return "automatic"
	case Manual:
		return "manual"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned for a mode change the state machine does not allow.
var ErrInvalidTransition = errors.New("invalid mode transition")

var modeTransitions = map[Mode]map[Mode]bool{
	Automatic: {
		Manual:  true,
		Stopped: true,
	},
	Manual: {
		Automatic: true,
		Stopped:   true,
	},
}

// CanTransition reports whether the arbiter may move from one mode to another.
func CanTransition(from, to Mode) bool {
	if from == to {
		return true
	}
	return modeTransitions[from][to]
}
