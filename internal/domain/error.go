package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrOperationFailed  = errors.New("operation failed")
	ErrReadDatabaseRow  = errors.New("failed to read database row")
	ErrMissingPaymentID = errors.New("missing payment id")
	ErrSessionActive    = errors.New("reconciliation session already active for payment")
	ErrNoSubscription   = errors.New("user has no subscription")
)
