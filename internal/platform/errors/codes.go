// Package errors provides structured error handling with machine-readable codes.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeGameNotStarted     Code = "GAME_NOT_STARTED"
	CodeGameAlreadyOver    Code = "GAME_ALREADY_OVER"
	CodeOutOfTurn          Code = "OUT_OF_TURN"
	CodePhaseDisallowsOp   Code = "PHASE_DISALLOWS_OPERATION"
	CodeCardNotInHand      Code = "CARD_NOT_IN_HAND"
	CodeMeldInvalid        Code = "MELD_INVALID"
	CodeDeadwoodTooHigh    Code = "DEADWOOD_TOO_HIGH"
	CodeLayoffInvalid      Code = "LAYOFF_INVALID"
	CodeActionUnknown      Code = "ACTION_UNKNOWN"
	CodeDiscardEmpty       Code = "DISCARD_PILE_EMPTY"
	CodePlayerUnknown      Code = "PLAYER_UNKNOWN"
	CodeGameExists         Code = "GAME_ALREADY_EXISTS"
	CodePlayersRequired    Code = "PLAYERS_REQUIRED"
	CodeRequestIDRequired  Code = "REQUEST_ID_REQUIRED"
	CodeGameIDRequired     Code = "GAME_ID_REQUIRED"

	// Concurrency errors
	CodeVersionMismatch  Code = "STATE_VERSION_MISMATCH"
	CodeDuplicateRequest Code = "DUPLICATE_REQUEST"

	// Stream errors
	CodeStreamCorrupted Code = "STREAM_CORRUPTED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeInternal Code = "INTERNAL"
)
