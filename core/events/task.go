package events

import "time"

// TaskEvent is published when a warehouse task changes status.
type TaskEvent struct {
	TaskID      string
	Type        string
	Source      string
	Destination string
	Status      string
	Err         error
	Time        time.Time
}
