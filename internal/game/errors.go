package game

import "errors"

var (
	// ErrRoomNotFound surfaces to the user as an invalid room code.
	ErrRoomNotFound = errors.New("room not found")

	// ErrGameAlreadyStarted rejects joins once the room is playing. A
	// latecomer has no battle pair in the round in flight, so admitting
	// one would stall everyone else's resolution.
	ErrGameAlreadyStarted = errors.New("game already started")

	// ErrRoundNotFound means the requested round was never created.
	ErrRoundNotFound = errors.New("round not found")

	// ErrUnsupportedActionCombination guards the scoring table. It should
	// be unreachable when actions are validated at submission.
	ErrUnsupportedActionCombination = errors.New("unsupported action combination")
)
