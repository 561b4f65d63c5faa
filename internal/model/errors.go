package model

import "errors"

var (
	ErrPastDate         = errors.New("date is in the past")
	ErrDateLocked       = errors.New("date is already confirmed")
	ErrDateUnavailable  = errors.New("date is unavailable")
	ErrOutsideWindow    = errors.New("date is outside the facility admission window")
	ErrAlreadyFinalized = errors.New("month is already finalized")
	ErrHistoryExists    = errors.New("service history exists for this booking")
	ErrNetworkFailure   = errors.New("store write failed")

	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid member status transition")
	ErrNothingToConfirm  = errors.New("facility has no kept dates to confirm")
	ErrEmptyRoster       = errors.New("facility has no selected residents")
	ErrInvalidRule       = errors.New("invalid recurring rule")
	ErrInvalidInput      = errors.New("invalid input")
)

// Errors returned by row stores.
var (
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrDateTaken              = errors.New("date already taken")
)
