package sermux

import "errors"

// Predefined error types for robust error handling
var (
	ErrNoBuffers       = errors.New("record arena exhausted")
	ErrRecordTooLarge  = errors.New("payload exceeds record capacity")
	ErrRegistryFull    = errors.New("session registry full")
	ErrSessionExists   = errors.New("session handle already registered")
	ErrSessionNotFound = errors.New("session not found")
	ErrSendTimeout     = errors.New("send confirmation timeout")
	ErrTxBusy          = errors.New("serial transmitter busy")
	ErrClosed          = errors.New("bridge is closed")
	ErrInvalidConfig   = errors.New("invalid bridge configuration")
)
