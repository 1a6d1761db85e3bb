package storage

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// StorageLocation is a bin with a fixed capacity.
type StorageLocation struct {
	id       string
	capacity int
	load     atomic.Int64
}

// NewStorageLocation validates id and capacity before creating the location.
func NewStorageLocation(id string, capacity int) (*StorageLocation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidLocationID
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &StorageLocation{id: id, capacity: capacity}, nil
}

func (l *StorageLocation) ID() string    { return l.id }
func (l *StorageLocation) Capacity() int { return l.capacity }
func (l *StorageLocation) Load() int     { return int(l.load.Load()) }

// Full reports whether no further item fits.
func (l *StorageLocation) Full() bool { return l.Load() >= l.capacity }

// AddItem stores one item.
func (l *StorageLocation) AddItem() error {
	for {
		cur := l.load.Load()
		if cur >= int64(l.capacity) {
			return fmt.Errorf("%w: %s", ErrLocationFull, l.id)
		}
		if l.load.CompareAndSwap(cur, cur+1) {
			return nil
		}
	}
}

// RemoveItem takes one item out.
func (l *StorageLocation) RemoveItem() error {
	for {
		cur := l.load.Load()
		if cur <= 0 {
			return fmt.Errorf("%w: %s", ErrLocationEmpty, l.id)
		}
		if l.load.CompareAndSwap(cur, cur-1) {
			return nil
		}
	}
}
