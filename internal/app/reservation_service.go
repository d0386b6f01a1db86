package app

import (
	"context"
	"sort"
	"time"

	"github.com/smatracka/hotdrop/internal/clock"
	"github.com/smatracka/hotdrop/internal/domain"
)

type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ReserveStock(ctx context.Context, dropID, productID string, quantity int) error
	ReleaseStock(ctx context.Context, productID string, quantity int) error
	CommitStock(ctx context.Context, productID string, quantity int) error
	CreateReservation(ctx context.Context, r domain.Reservation) error
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error)
	SaveReservationLines(ctx context.Context, id string, lines []domain.ReservationLine, updatedAt time.Time) error
	TransitionStatus(ctx context.Context, id string, from, to domain.ReservationStatus, updatedAt time.Time) (bool, error)
	ListExpiredIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// AdmissionChecker reports a user's standing in a drop queue. Satisfied by
// *QueueService.
type AdmissionChecker interface {
	Status(ctx context.Context, dropID, userID string) (domain.Admission, error)
}

// ReservationService gives a shopper an exclusive, time-boxed claim on
// product quantities. Stock mutations go through the repository's atomic
// conditional updates only; combined with the surrounding transaction this
// makes multi-line creation all-or-nothing.
type ReservationService struct {
	repo     ReservationRepository
	queue    AdmissionChecker
	clock    clock.Clock
	ttl      time.Duration
	maxLines int
}

const (
	defaultReservationTTL = 15 * time.Minute
	defaultMaxLines       = 10
)

func NewReservationService(repo ReservationRepository, queue AdmissionChecker, clk clock.Clock, opts ...ReservationServiceOption) *ReservationService {
	svc := &ReservationService{
		repo:     repo,
		queue:    queue,
		clock:    clk,
		ttl:      defaultReservationTTL,
		maxLines: defaultMaxLines,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReservationServiceOption func(*ReservationService)

// WithReservationTTL overrides the default TTL for new reservations.
func WithReservationTTL(d time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithMaxLines overrides the per-reservation line limit.
func WithMaxLines(n int) ReservationServiceOption {
	return func(s *ReservationService) {
		if n > 0 {
			s.maxLines = n
		}
	}
}

type CreateReservationInput struct {
	DropID string
	UserID string
	Lines  []domain.ReservationLine
	// TTL overrides the service default when positive.
	TTL time.Duration
}

func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (domain.Reservation, error) {
	if in.UserID == "" {
		return domain.Reservation{}, domain.ErrUserIDRequired
	}
	lines, err := s.normalizeLines(in.Lines)
	if err != nil {
		return domain.Reservation{}, err
	}

	// A drop without a queue has admission control disabled; otherwise the
	// shopper must hold an active slot before reserving stock.
	adm, err := s.queue.Status(ctx, in.DropID, in.UserID)
	switch err {
	case nil:
		if adm.Status != domain.AdmissionAdmitted {
			return domain.Reservation{}, domain.ErrNotAdmitted
		}
	case domain.ErrQueueNotFound:
	default:
		return domain.Reservation{}, err
	}

	ttl := s.ttl
	if in.TTL > 0 {
		ttl = in.TTL
	}

	now := s.clock.Now()
	reservation := domain.Reservation{
		ID:        newUUID(),
		DropID:    in.DropID,
		UserID:    in.UserID,
		Lines:     lines,
		Status:    domain.ReservationStatusActive,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		// Any failed line rolls back the increments of the earlier ones.
		for _, line := range lines {
			if err := s.repo.ReserveStock(txCtx, in.DropID, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		return s.repo.CreateReservation(txCtx, reservation)
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return reservation, nil
}

// Get returns the reservation. An active reservation past its expiry is
// reported as expired even before the sweep has transitioned it.
func (s *ReservationService) Get(ctx context.Context, id string) (domain.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if r.Status == domain.ReservationStatusActive && !r.ExpiresAt.After(s.clock.Now()) {
		return r, domain.ErrReservationExpired
	}
	return r, nil
}

// Update replaces the reservation's lines, releasing the old quantities and
// reserving the new ones as one atomic step.
func (s *ReservationService) Update(ctx context.Context, id string, newLines []domain.ReservationLine) (domain.Reservation, error) {
	lines, err := s.normalizeLines(newLines)
	if err != nil {
		return domain.Reservation{}, err
	}

	var result domain.Reservation
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		r, err := s.repo.GetReservationForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if r.Status == domain.ReservationStatusExpired {
			return domain.ErrReservationExpired
		}
		if r.Status != domain.ReservationStatusActive {
			return domain.ErrInvalidStatus
		}
		if !r.ExpiresAt.After(now) {
			return domain.ErrReservationExpired
		}

		for _, line := range r.Lines {
			if err := s.repo.ReleaseStock(txCtx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		for _, line := range lines {
			if err := s.repo.ReserveStock(txCtx, r.DropID, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		if err := s.repo.SaveReservationLines(txCtx, id, lines, now); err != nil {
			return err
		}

		r.Lines = lines
		r.UpdatedAt = now
		result = r
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return result, nil
}

// Complete converts the hold into a sale: reserved counters come down, sold
// counters go up. Called by the checkout collaborator after payment.
func (s *ReservationService) Complete(ctx context.Context, id string) (domain.Reservation, error) {
	return s.finish(ctx, id, domain.ReservationStatusCompleted)
}

// Cancel releases the hold without recording a sale.
func (s *ReservationService) Cancel(ctx context.Context, id string) (domain.Reservation, error) {
	return s.finish(ctx, id, domain.ReservationStatusCancelled)
}

func (s *ReservationService) finish(ctx context.Context, id string, to domain.ReservationStatus) (domain.Reservation, error) {
	var result domain.Reservation
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		r, err := s.repo.GetReservationForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if r.Status == domain.ReservationStatusExpired {
			return domain.ErrReservationExpired
		}
		if r.Status != domain.ReservationStatusActive {
			return domain.ErrInvalidStatus
		}
		if !r.ExpiresAt.After(now) {
			// Past the deadline the sweep owns this reservation.
			return domain.ErrReservationExpired
		}

		ok, err := s.repo.TransitionStatus(txCtx, id, domain.ReservationStatusActive, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidStatus
		}

		for _, line := range r.Lines {
			if to == domain.ReservationStatusCompleted {
				if err := s.repo.CommitStock(txCtx, line.ProductID, line.Quantity); err != nil {
					return err
				}
			} else {
				if err := s.repo.ReleaseStock(txCtx, line.ProductID, line.Quantity); err != nil {
					return err
				}
			}
		}

		r.Status = to
		r.UpdatedAt = now
		result = r
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return result, nil
}

// ExpireDue transitions overdue active reservations to expired and releases
// their stock. Safe to run concurrently with Complete/Cancel: whichever
// transition lands first wins and the loser is a no-op. Returns how many
// reservations were expired; a per-item failure does not abort the batch.
func (s *ReservationService) ExpireDue(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	ids, err := s.repo.ListExpiredIDs(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	var firstErr error
	for _, id := range ids {
		ok, err := s.expireOne(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, firstErr
}

func (s *ReservationService) expireOne(ctx context.Context, id string) (bool, error) {
	var expired bool
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		r, err := s.repo.GetReservationForUpdate(txCtx, id)
		if err != nil {
			if err == domain.ErrReservationNotFound {
				return nil
			}
			return err
		}
		now := s.clock.Now()
		if r.Status != domain.ReservationStatusActive || r.ExpiresAt.After(now) {
			return nil
		}

		ok, err := s.repo.TransitionStatus(txCtx, id, domain.ReservationStatusActive, domain.ReservationStatusExpired, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		for _, line := range r.Lines {
			if err := s.repo.ReleaseStock(txCtx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		expired = true
		return nil
	})
	return expired, err
}

// normalizeLines validates the request lines and merges duplicates of the
// same product+variant by summing their quantities. The merged set is what
// availability is checked against, sorted by product then variant so
// concurrent transactions always lock product rows in the same order.
func (s *ReservationService) normalizeLines(lines []domain.ReservationLine) ([]domain.ReservationLine, error) {
	if len(lines) == 0 {
		return nil, domain.ErrNoLines
	}

	merged := make([]domain.ReservationLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			return nil, domain.ErrProductIDRequired
		}
		if line.Quantity < 1 {
			return nil, domain.ErrInvalidQuantity
		}
		key := line.ProductID + "|" + line.VariantID
		if i, ok := index[key]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, line)
	}

	if len(merged) > s.maxLines {
		return nil, domain.ErrTooManyLines
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].ProductID != merged[j].ProductID {
			return merged[i].ProductID < merged[j].ProductID
		}
		return merged[i].VariantID < merged[j].VariantID
	})
	return merged, nil
}
