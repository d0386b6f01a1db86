package domain

import "time"

type DropStatus string

const (
	DropStatusDraft     DropStatus = "draft"
	DropStatusPublished DropStatus = "published"
	DropStatusCompleted DropStatus = "completed"
	DropStatusCancelled DropStatus = "cancelled"
)

// Drop represents a time-boxed, limited-stock sale.
type Drop struct {
	ID        string
	SellerID  string
	Name      string
	Status    DropStatus
	StartsAt  time.Time
	EndsAt    time.Time
	CreatedAt time.Time
}
