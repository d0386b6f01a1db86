package tasks

import (
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

// StartWorker runs the background worker server. Concurrency is the warm
// worker pool size; the returned closure shuts the server down.
func StartWorker(redisAddr string, concurrency int, h *Handler, logger *log.Logger) func() {
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: concurrency,
	})
	mux := NewMux(h)
	go func() {
		if err := srv.Run(mux); err != nil {
			logger.Fatalf("asynq server: %v", err)
		}
	}()
	return func() {
		srv.Shutdown()
	}
}

// StartScheduler registers the periodic warm scan and reservation sweep and
// runs the scheduler loop. The returned closure shuts it down.
func StartScheduler(redisAddr string, scanInterval, sweepInterval time.Duration, logger *log.Logger) (func(), error) {
	sched := asynq.NewScheduler(asynq.RedisClientOpt{Addr: redisAddr}, &asynq.SchedulerOpts{})

	if _, err := sched.Register(everySpec(scanInterval), asynq.NewTask(TaskWarmScan, nil)); err != nil {
		return nil, fmt.Errorf("register warm scan: %w", err)
	}
	if _, err := sched.Register(everySpec(sweepInterval), asynq.NewTask(TaskSweepReservations, nil)); err != nil {
		return nil, fmt.Errorf("register reservation sweep: %w", err)
	}

	go func() {
		if err := sched.Run(); err != nil {
			logger.Fatalf("asynq scheduler: %v", err)
		}
	}()
	return func() {
		sched.Shutdown()
	}, nil
}

func everySpec(interval time.Duration) string {
	if interval < time.Second {
		interval = time.Second
	}
	return fmt.Sprintf("@every %s", interval)
}
