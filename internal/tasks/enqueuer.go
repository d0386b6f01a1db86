package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// Enqueuer hands warm work to the background workers. Per-drop and per-seller
// tasks carry a deterministic task ID, so concurrent scheduler instances (or
// a scan racing a manual trigger) collapse into a single warm per target.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(redisAddr string) *Enqueuer {
	return &Enqueuer{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
	}
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}

func (e *Enqueuer) EnqueueWarmDrop(ctx context.Context, dropID string) error {
	payload, err := json.Marshal(WarmDropPayload{DropID: dropID})
	if err != nil {
		return fmt.Errorf("marshal warm drop payload: %w", err)
	}
	task := asynq.NewTask(TaskWarmDrop, payload)
	_, err = e.client.EnqueueContext(ctx, task, asynq.TaskID("warm:drop:"+dropID), asynq.MaxRetry(2))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// Already queued or in flight; the pending warm covers this request.
		return nil
	}
	return err
}

func (e *Enqueuer) EnqueueWarmSeller(ctx context.Context, sellerID string) error {
	payload, err := json.Marshal(WarmSellerPayload{SellerID: sellerID})
	if err != nil {
		return fmt.Errorf("marshal warm seller payload: %w", err)
	}
	task := asynq.NewTask(TaskWarmSeller, payload)
	_, err = e.client.EnqueueContext(ctx, task, asynq.TaskID("warm:seller:"+sellerID), asynq.MaxRetry(2))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}
