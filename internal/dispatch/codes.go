package dispatch

import (
	"errors"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
)

const (
	CodeNotFound       = "NOT_FOUND"
	CodeNameTaken      = "NAME_TAKEN"
	CodeNotInRoom      = "NOT_IN_ROOM"
	CodePlayerNotFound = "PLAYER_NOT_FOUND"
	CodeNotYourTurn    = "NOT_YOUR_TURN"
	CodeOutOfBounds    = "OUT_OF_BOUNDS"
	CodeCellOccupied   = "CELL_OCCUPIED"
	CodeInvalidDieType = "INVALID_DIE_TYPE"
	CodeInvalidCount   = "INVALID_COUNT"
	CodeUnknownAction  = "UNKNOWN_ACTION"
	CodeRoomFull       = "ROOM_FULL"
	CodeInvalidPayload = "INVALID_PAYLOAD"
	CodeInternal       = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{engine.ErrNotFound, CodeNotFound},
	{engine.ErrNameTaken, CodeNameTaken},
	{engine.ErrNotInRoom, CodeNotInRoom},
	{engine.ErrPlayerNotFound, CodePlayerNotFound},
	{engine.ErrNotYourTurn, CodeNotYourTurn},
	{engine.ErrOutOfBounds, CodeOutOfBounds},
	{engine.ErrCellOccupied, CodeCellOccupied},
	{engine.ErrInvalidDieType, CodeInvalidDieType},
	{engine.ErrInvalidCount, CodeInvalidCount},
	{engine.ErrUnknownAction, CodeUnknownAction},
	{engine.ErrRoomFull, CodeRoomFull},
	{ErrInvalidPayload, CodeInvalidPayload},
}

// Code returns the stable wire code for err. Anything outside the request
// error taxonomy, invariant violations included, is INTERNAL.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// Message is the text shown to the requester. Internal failures are not
// described to clients.
func Message(err error) string {
	if Code(err) == CodeInternal {
		return "internal error"
	}
	return err.Error()
}
