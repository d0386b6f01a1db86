package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// ReservationLine is one product claim inside a reservation. A reservation
// references a product at most once; duplicate lines are merged on intake.
type ReservationLine struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Reservation represents a time-boxed hold of product quantities for one
// shopper's cart. While Status is active the line quantities are counted
// against each product's reserved counter.
type Reservation struct {
	ID        string
	DropID    string
	UserID    string
	Lines     []ReservationLine
	Status    ReservationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
