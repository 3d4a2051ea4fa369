package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrNoQuote        = errors.New("no quote for asset")
	ErrUnknownOrder   = errors.New("order not found")
	ErrInvalidPayload = errors.New("invalid command payload")
	ErrUnknownCommand = errors.New("unknown command kind")
	ErrNoCheckpoint   = errors.New("no checkpoint")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInsufficient   = errors.New("insufficient balance")
	ErrReplyTimeout   = errors.New("timed out waiting for engine reply")
)
