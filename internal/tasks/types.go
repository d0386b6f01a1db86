package tasks

const (
	TaskWarmScan          = "warmer:scan"
	TaskWarmDrop          = "warmer:drop"
	TaskWarmSeller        = "warmer:seller"
	TaskSweepReservations = "reservation:sweep"
)

type WarmDropPayload struct {
	DropID string `json:"drop_id"`
}

type WarmSellerPayload struct {
	SellerID string `json:"seller_id"`
}
