package app

import (
	"context"

	"github.com/smatracka/hotdrop/internal/clock"
	"github.com/smatracka/hotdrop/internal/domain"
)

type QueueRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetDrop(ctx context.Context, dropID string) (domain.Drop, error)
	GetQueue(ctx context.Context, dropID string) (domain.QueueState, error)
	GetQueueForUpdate(ctx context.Context, dropID string) (domain.QueueState, error)
	CreateQueue(ctx context.Context, state domain.QueueState) error
	SaveQueue(ctx context.Context, state domain.QueueState) error
}

// SnapshotCache is the warmed read cache consulted before the primary store.
// Satisfied by *rediscache.Store.
type SnapshotCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
}

// QueueService caps how many shoppers may concurrently shop a drop and serves
// the overflow in arrival order. All mutations of one drop's queue run under
// the repository's per-drop row lock, so two joins racing on the last free
// slot cannot both be admitted.
type QueueService struct {
	repo  QueueRepository
	clock clock.Clock
	cache SnapshotCache
}

type QueueServiceOption func(*QueueService)

// WithSnapshotCache lets Snapshot serve warmed counts without touching the
// primary store.
func WithSnapshotCache(cache SnapshotCache) QueueServiceOption {
	return func(s *QueueService) {
		s.cache = cache
	}
}

func NewQueueService(repo QueueRepository, clk clock.Clock, opts ...QueueServiceOption) *QueueService {
	svc := &QueueService{
		repo:  repo,
		clock: clk,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Initialize creates the queue state for a drop. It fails with
// ErrQueueAlreadyExists when a queue is already present; use UpdateCapacity
// to change the ceiling of an existing queue.
func (s *QueueService) Initialize(ctx context.Context, dropID string, maxConcurrentUsers int) (domain.QueueState, error) {
	if maxConcurrentUsers <= 0 {
		return domain.QueueState{}, domain.ErrInvalidCapacity
	}

	state := domain.QueueState{
		DropID:             dropID,
		MaxConcurrentUsers: maxConcurrentUsers,
		ActiveUsers:        []string{},
		WaitingQueue:       []string{},
		UpdatedAt:          s.clock.Now(),
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.GetDrop(txCtx, dropID); err != nil {
			return err
		}
		return s.repo.CreateQueue(txCtx, state)
	})
	if err != nil {
		return domain.QueueState{}, err
	}
	return state, nil
}

// UpdateCapacity changes the admission ceiling. Lowering it below the current
// active count never evicts anyone; new admissions stay blocked until the
// active count falls under the new ceiling on its own.
func (s *QueueService) UpdateCapacity(ctx context.Context, dropID string, maxConcurrentUsers int) (domain.QueueState, error) {
	if maxConcurrentUsers <= 0 {
		return domain.QueueState{}, domain.ErrInvalidCapacity
	}

	var result domain.QueueState
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		state, err := s.repo.GetQueueForUpdate(txCtx, dropID)
		if err != nil {
			return err
		}
		state.MaxConcurrentUsers = maxConcurrentUsers
		state.UpdatedAt = s.clock.Now()
		if err := s.repo.SaveQueue(txCtx, state); err != nil {
			return err
		}
		result = state
		return nil
	})
	if err != nil {
		return domain.QueueState{}, err
	}
	return result, nil
}

// Join admits the user when a slot is free and appends them to the waiting
// queue otherwise. It is idempotent: an already-admitted user stays admitted
// and an already-waiting user keeps their original position.
func (s *QueueService) Join(ctx context.Context, dropID, userID string) (domain.Admission, error) {
	if userID == "" {
		return domain.Admission{}, domain.ErrUserIDRequired
	}

	var result domain.Admission
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		state, err := s.repo.GetQueueForUpdate(txCtx, dropID)
		if err != nil {
			return err
		}

		if indexOf(state.ActiveUsers, userID) >= 0 {
			result = domain.Admission{Status: domain.AdmissionAdmitted}
			return nil
		}
		if pos := indexOf(state.WaitingQueue, userID); pos >= 0 {
			result = domain.Admission{Status: domain.AdmissionQueued, Position: pos + 1}
			return nil
		}

		if len(state.ActiveUsers) < state.MaxConcurrentUsers {
			state.ActiveUsers = append(state.ActiveUsers, userID)
			result = domain.Admission{Status: domain.AdmissionAdmitted}
		} else {
			state.WaitingQueue = append(state.WaitingQueue, userID)
			result = domain.Admission{Status: domain.AdmissionQueued, Position: len(state.WaitingQueue)}
		}

		state.UpdatedAt = s.clock.Now()
		return s.repo.SaveQueue(txCtx, state)
	})
	if err != nil {
		return domain.Admission{}, err
	}
	return result, nil
}

// Leave removes the user from the active set and the waiting queue. When an
// active slot frees up, the head of the waiting queue is promoted in the same
// transaction, so the slot can never be double-admitted. Leaving while not
// present anywhere is a no-op.
func (s *QueueService) Leave(ctx context.Context, dropID, userID string) error {
	if userID == "" {
		return domain.ErrUserIDRequired
	}

	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		state, err := s.repo.GetQueueForUpdate(txCtx, dropID)
		if err != nil {
			return err
		}

		changed := false
		if pos := indexOf(state.ActiveUsers, userID); pos >= 0 {
			state.ActiveUsers = append(state.ActiveUsers[:pos], state.ActiveUsers[pos+1:]...)
			changed = true
		}
		if pos := indexOf(state.WaitingQueue, userID); pos >= 0 {
			state.WaitingQueue = append(state.WaitingQueue[:pos], state.WaitingQueue[pos+1:]...)
			changed = true
		}
		if !changed {
			return nil
		}

		// Promote FIFO while slots are free; a single Leave frees at most one
		// slot, but a lowered ceiling may have left the queue backed up.
		for len(state.ActiveUsers) < state.MaxConcurrentUsers && len(state.WaitingQueue) > 0 {
			next := state.WaitingQueue[0]
			state.WaitingQueue = state.WaitingQueue[1:]
			state.ActiveUsers = append(state.ActiveUsers, next)
		}

		state.UpdatedAt = s.clock.Now()
		return s.repo.SaveQueue(txCtx, state)
	})
}

// Status reports the caller's standing without taking the write lock.
func (s *QueueService) Status(ctx context.Context, dropID, userID string) (domain.Admission, error) {
	state, err := s.repo.GetQueue(ctx, dropID)
	if err != nil {
		return domain.Admission{}, err
	}

	if indexOf(state.ActiveUsers, userID) >= 0 {
		return domain.Admission{Status: domain.AdmissionAdmitted}, nil
	}
	if pos := indexOf(state.WaitingQueue, userID); pos >= 0 {
		return domain.Admission{Status: domain.AdmissionQueued, Position: pos + 1}, nil
	}
	return domain.Admission{Status: domain.AdmissionUnknown}, nil
}

// State returns the queue state for a drop.
func (s *QueueService) State(ctx context.Context, dropID string) (domain.QueueState, error) {
	return s.repo.GetQueue(ctx, dropID)
}

// Snapshot returns the queue's public counts. A warmed cache entry is served
// when present; a miss or a cache failure falls through to the primary store.
func (s *QueueService) Snapshot(ctx context.Context, dropID string) (QueueSnapshot, error) {
	if s.cache != nil {
		var snap QueueSnapshot
		hit, err := s.cache.GetJSON(ctx, DropQueueCacheKey(dropID), &snap)
		if err == nil && hit {
			return snap, nil
		}
	}

	state, err := s.repo.GetQueue(ctx, dropID)
	if err != nil {
		return QueueSnapshot{}, err
	}
	return QueueSnapshot{
		CurrentUsers:       len(state.ActiveUsers),
		MaxConcurrentUsers: state.MaxConcurrentUsers,
		Waiting:            len(state.WaitingQueue),
		UpdatedAt:          state.UpdatedAt,
	}, nil
}

func indexOf(items []string, target string) int {
	for i, item := range items {
		if item == target {
			return i
		}
	}
	return -1
}
