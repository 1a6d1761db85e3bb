package storage

import "errors"

var (
	ErrInvalidLocationID = errors.New("storage: invalid location id")
	ErrInvalidCapacity   = errors.New("storage: capacity must be positive")
	ErrNilLocation       = errors.New("storage: location is nil")
	ErrInvalidAmount     = errors.New("storage: amount must be positive")
	ErrUnknownLocation   = errors.New("storage: location is not registered")
	ErrDuplicateLocation = errors.New("storage: location already registered")

	ErrLocationFull      = errors.New("storage: location is full")
	ErrLocationEmpty     = errors.New("storage: location is empty")
	ErrInsufficientStock = errors.New("storage: not enough items in storage")
	ErrInterlockActive   = errors.New("storage: robotic arm already active")
	ErrInterlockInactive = errors.New("storage: robotic arm is inactive")
	ErrClosed            = errors.New("storage: manager is shut down")
	ErrCancelled         = errors.New("storage: operation cancelled by shutdown")
)
