package domain

import "errors"

// Typed rejections returned by transition functions and services.
// Callers branch with errors.Is; everything else is wrapped context.
var (
	ErrNotFound        = errors.New("not found")
	ErrWrongState      = errors.New("transition not legal from current state")
	ErrUnauthorized    = errors.New("actor not authorized for this operation")
	ErrVersionConflict = errors.New("aggregate version conflict")
	ErrAlreadyTerminal = errors.New("aggregate is in a terminal state")

	ErrPaymentHoldFailed    = errors.New("payment hold failed")
	ErrPaymentCaptureFailed = errors.New("payment capture failed")
	ErrPaymentVoidFailed    = errors.New("payment void failed")
)
