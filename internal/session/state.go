package session

import (
	"encoding/json"
	"fmt"
)

// State is the lifecycle phase of the bike connection.
type State int

const (
	Idle State = iota
	Scanning
	Connecting
	DiscoveringServices
	Subscribing
	Streaming
	Disconnected
	Error
)

var stateNames = map[State]string{
	Idle:                "idle",
	Scanning:            "scanning",
	Connecting:          "connecting",
	DiscoveringServices: "discovering_services",
	Subscribing:         "subscribing",
	Streaming:           "streaming",
	Disconnected:        "disconnected",
	Error:               "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// transitions lists every legal edge. Disconnected and Error are re-entrant so the user
// may always retry from them.
var transitions = map[State][]State{
	Idle:                {Scanning, Connecting, Error},
	Scanning:            {Disconnected, Connecting, Error},
	Connecting:          {DiscoveringServices, Error, Disconnected},
	DiscoveringServices: {Subscribing, Error, Disconnected},
	Subscribing:         {Streaming, Error, Disconnected},
	Streaming:           {Disconnected},
	Disconnected:        {Scanning, Connecting, Error},
	Error:               {Scanning, Connecting, Disconnected, Error, Idle},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// linked reports whether the state holds, or is acquiring, a transport link.
func (s State) linked() bool {
	switch s {
	case Connecting, DiscoveringServices, Subscribing, Streaming:
		return true
	default:
		return false
	}
}

// Status is the observable session state. Reason is set only in Error.
type Status struct {
	State   State
	Reason  error
	Address string
}

func (s Status) String() string {
	switch {
	case s.State == Error && s.Reason != nil:
		return fmt.Sprintf("%s: %v", s.State, s.Reason)
	case s.Address != "" && s.State.linked():
		return fmt.Sprintf("%s %s", s.State, s.Address)
	default:
		return s.State.String()
	}
}

// MarshalJSON renders the reason as a string.
func (s Status) MarshalJSON() ([]byte, error) {
	out := struct {
		State   State  `json:"state"`
		Reason  string `json:"reason,omitempty"`
		Address string `json:"address,omitempty"`
	}{State: s.State, Address: s.Address}
	if s.Reason != nil {
		out.Reason = s.Reason.Error()
	}
	return json.Marshal(out)
}
