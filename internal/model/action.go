package model

import "fmt"

// Action is a battle move a player locks in for a round.
type Action int

const (
	// NoAction is the forced default when a player times out or sits out.
	NoAction Action = iota
	Merge
	Pop
	Float
)

var actionNames = map[Action]string{
	NoAction: "NoAction",
	Merge:    "Merge",
	Pop:      "Pop",
	Float:    "Float",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Valid reports whether a is one of the four known actions.
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// ParseAction converts the wire representation back to an Action.
func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return NoAction, fmt.Errorf("unknown action %q", s)
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
