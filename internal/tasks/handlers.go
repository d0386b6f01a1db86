package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/smatracka/hotdrop/internal/domain"
)

// Warmer is the warm-service surface the task handlers drive.
type Warmer interface {
	Candidates(ctx context.Context) ([]string, error)
	WarmDrop(ctx context.Context, dropID string) error
	WarmSeller(ctx context.Context, sellerID string) error
}

// Sweeper expires overdue reservations in batches.
type Sweeper interface {
	ExpireDue(ctx context.Context, limit int) (int, error)
}

type Handler struct {
	warmer     Warmer
	sweeper    Sweeper
	enqueuer   *Enqueuer
	logger     *log.Logger
	sweepBatch int
}

func NewHandler(warmer Warmer, sweeper Sweeper, enqueuer *Enqueuer, logger *log.Logger, sweepBatch int) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	if sweepBatch <= 0 {
		sweepBatch = 100
	}
	return &Handler{
		warmer:     warmer,
		sweeper:    sweeper,
		enqueuer:   enqueuer,
		logger:     logger,
		sweepBatch: sweepBatch,
	}
}

func NewMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskWarmScan, h.handleWarmScan)
	mux.HandleFunc(TaskWarmDrop, h.handleWarmDrop)
	mux.HandleFunc(TaskWarmSeller, h.handleWarmSeller)
	mux.HandleFunc(TaskSweepReservations, h.handleSweep)
	return mux
}

// handleWarmScan fans the current warm candidates out as per-drop tasks, most
// urgent first. Workers drain them FIFO under the server's concurrency cap.
func (h *Handler) handleWarmScan(ctx context.Context, _ *asynq.Task) error {
	ids, err := h.warmer.Candidates(ctx)
	if err != nil {
		return fmt.Errorf("list warm candidates: %w", err)
	}

	for _, dropID := range ids {
		if err := h.enqueuer.EnqueueWarmDrop(ctx, dropID); err != nil {
			h.logger.Printf("WARN: enqueue warm for drop %s: %v", dropID, err)
		}
	}
	return nil
}

func (h *Handler) handleWarmDrop(ctx context.Context, t *asynq.Task) error {
	var payload WarmDropPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal warm drop payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.warmer.WarmDrop(ctx, payload.DropID); err != nil {
		if err == domain.ErrDropNotFound || err == domain.ErrInvalidID {
			h.logger.Printf("WARN: skip warming unknown drop %s", payload.DropID)
			return nil
		}
		return fmt.Errorf("warm drop %s: %w", payload.DropID, err)
	}
	return nil
}

func (h *Handler) handleWarmSeller(ctx context.Context, t *asynq.Task) error {
	var payload WarmSellerPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal warm seller payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.warmer.WarmSeller(ctx, payload.SellerID); err != nil {
		return fmt.Errorf("warm seller %s: %w", payload.SellerID, err)
	}
	return nil
}

func (h *Handler) handleSweep(ctx context.Context, _ *asynq.Task) error {
	expired, err := h.sweeper.ExpireDue(ctx, h.sweepBatch)
	if expired > 0 {
		h.logger.Printf("expired %d overdue reservations", expired)
	}
	if err != nil {
		return fmt.Errorf("reservation sweep: %w", err)
	}
	return nil
}
