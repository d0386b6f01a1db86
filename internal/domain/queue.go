package domain

import "time"

// QueueState tracks who may actively shop a drop and who is waiting for a
// slot. ActiveUsers is bounded by MaxConcurrentUsers; WaitingQueue is strictly
// FIFO by arrival order.
type QueueState struct {
	DropID             string
	MaxConcurrentUsers int
	ActiveUsers        []string
	WaitingQueue       []string
	UpdatedAt          time.Time
}

type AdmissionStatus string

const (
	AdmissionAdmitted AdmissionStatus = "admitted"
	AdmissionQueued   AdmissionStatus = "queued"
	AdmissionUnknown  AdmissionStatus = "unknown"
)

// Admission reports a single user's standing in a drop queue. Position is
// 1-based within the waiting queue and zero unless Status is queued.
type Admission struct {
	Status   AdmissionStatus
	Position int
}
