package domain

// Product carries the inventory counters for one sellable item in a drop.
type Product struct {
	ID       string
	DropID   string
	Name     string
	Quantity int
	Reserved int
	Sold     int
}

// Available is the quantity still open to new reservations.
func (p Product) Available() int {
	return p.Quantity - p.Reserved
}
