package sensor

import "fmt"

// State is the liveness of a sensor as tracked by the fleet.
type State int

const (
	// Initializing is the state right after bring-up, before the fleet confirmed it.
	Initializing State = iota
	// Active sensors answered recently and are being read.
	Active
	// Degraded is reserved. Nothing moves a sensor into it yet.
	Degraded
	// Unreachable sensors failed a health probe and are removed once the grace window passes.
	Unreachable
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Active:
		return "active"
	case Degraded:
		return "degraded"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "initializing":
		*s = Initializing
	case "active":
		*s = Active
	case "degraded":
		*s = Degraded
	case "unreachable":
		*s = Unreachable
	default:
		return fmt.Errorf("unknown sensor state %q", text)
	}
	return nil
}
