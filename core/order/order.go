// Package order tracks medicine orders fulfilled from storage.
package order

import (
	"errors"
	"time"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"

	// statusPicking is held while storage is being updated.
	statusPicking Status = "PICKING"
)

var (
	ErrNotFound        = errors.New("order: not found")
	ErrInvalidQuantity = errors.New("order: quantity must be positive")
	ErrEmptyMedicine   = errors.New("order: medicine is required")
	ErrNotOpen         = errors.New("order: order is no longer open")
)

// Order is a request to pick Quantity units of Medicine from LocationID.
type Order struct {
	ID         string
	Medicine   string
	Quantity   int
	LocationID string
	Emergency  bool
	Status     Status
	// Failure holds the storage error of a FAILED order.
	Failure   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open reports whether the order can still be completed or cancelled.
func (o Order) Open() bool { return o.Status == StatusCreated }
