package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smatracka/hotdrop/internal/clock"
	"github.com/smatracka/hotdrop/internal/domain"
)

func TestReservationService_Create(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	ttl := 15 * time.Minute

	makeSvc := func(stock map[string]int) (*ReservationService, *fakeReservationRepo) {
		repo := newFakeReservationRepo("drop-1", stock)
		svc := NewReservationService(repo, &stubAdmission{err: domain.ErrQueueNotFound}, clock.NewFixed(now), WithReservationTTL(ttl))
		return svc, repo
	}

	t.Run("reserves stock and sets expiry", func(t *testing.T) {
		t.Parallel()
		svc, repo := makeSvc(map[string]int{"p1": 10})

		r, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u1",
			Lines:  []domain.ReservationLine{{ProductID: "p1", Quantity: 3}},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if r.ID == "" {
			t.Fatalf("expected reservation ID to be set")
		}
		if r.Status != domain.ReservationStatusActive {
			t.Fatalf("expected active status, got %s", r.Status)
		}
		if r.ExpiresAt != now.Add(ttl) {
			t.Fatalf("expected expires_at %v, got %v", now.Add(ttl), r.ExpiresAt)
		}
		if got := repo.products["p1"].Reserved; got != 3 {
			t.Fatalf("expected 3 reserved, got %d", got)
		}
	})

	t.Run("merges duplicate lines", func(t *testing.T) {
		t.Parallel()
		svc, repo := makeSvc(map[string]int{"p1": 10})

		r, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u1",
			Lines: []domain.ReservationLine{
				{ProductID: "p1", Quantity: 2},
				{ProductID: "p1", Quantity: 3},
			},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(r.Lines) != 1 || r.Lines[0].Quantity != 5 {
			t.Fatalf("expected one merged line of 5, got %+v", r.Lines)
		}
		if got := repo.products["p1"].Reserved; got != 5 {
			t.Fatalf("expected 5 reserved, got %d", got)
		}
	})

	t.Run("variants are distinct lines", func(t *testing.T) {
		t.Parallel()
		svc, _ := makeSvc(map[string]int{"p1": 10})

		r, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u1",
			Lines: []domain.ReservationLine{
				{ProductID: "p1", VariantID: "red", Quantity: 2},
				{ProductID: "p1", VariantID: "blue", Quantity: 3},
			},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(r.Lines) != 2 {
			t.Fatalf("expected two lines, got %+v", r.Lines)
		}
	})

	t.Run("lines are ordered by product regardless of input order", func(t *testing.T) {
		t.Parallel()
		svc, _ := makeSvc(map[string]int{"p1": 10, "p2": 10, "p3": 10})

		r, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u1",
			Lines: []domain.ReservationLine{
				{ProductID: "p3", Quantity: 1},
				{ProductID: "p1", VariantID: "red", Quantity: 2},
				{ProductID: "p2", Quantity: 1},
				{ProductID: "p1", VariantID: "blue", Quantity: 1},
			},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := []struct{ product, variant string }{
			{"p1", "blue"}, {"p1", "red"}, {"p2", ""}, {"p3", ""},
		}
		if len(r.Lines) != len(want) {
			t.Fatalf("expected %d lines, got %+v", len(want), r.Lines)
		}
		for i, w := range want {
			if r.Lines[i].ProductID != w.product || r.Lines[i].VariantID != w.variant {
				t.Fatalf("expected line %d to be %s/%s, got %+v", i, w.product, w.variant, r.Lines[i])
			}
		}
	})

	t.Run("merged quantity checked against stock", func(t *testing.T) {
		t.Parallel()
		svc, repo := makeSvc(map[string]int{"p1": 4})

		_, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u1",
			Lines: []domain.ReservationLine{
				{ProductID: "p1", Quantity: 2},
				{ProductID: "p1", Quantity: 3},
			},
		})
		if err != domain.ErrInsufficientStock {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
		if got := repo.products["p1"].Reserved; got != 0 {
			t.Fatalf("expected no stock reserved on failure, got %d", got)
		}
	})

	t.Run("failed line rolls back earlier lines", func(t *testing.T) {
		t.Parallel()
		svc, repo := makeSvc(map[string]int{"p1": 10, "p2": 1})

		_, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u1",
			Lines: []domain.ReservationLine{
				{ProductID: "p1", Quantity: 5},
				{ProductID: "p2", Quantity: 2},
			},
		})
		if err != domain.ErrInsufficientStock {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
		if got := repo.products["p1"].Reserved; got != 0 {
			t.Fatalf("expected p1 rolled back, got %d reserved", got)
		}
		if len(repo.reservations) != 0 {
			t.Fatalf("expected no reservation recorded, got %d", len(repo.reservations))
		}
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		svc, _ := makeSvc(map[string]int{"p1": 10})

		tests := []struct {
			name        string
			input       CreateReservationInput
			expectedErr error
		}{
			{
				name:        "missing user",
				input:       CreateReservationInput{DropID: "drop-1", Lines: []domain.ReservationLine{{ProductID: "p1", Quantity: 1}}},
				expectedErr: domain.ErrUserIDRequired,
			},
			{
				name:        "no lines",
				input:       CreateReservationInput{DropID: "drop-1", UserID: "u1"},
				expectedErr: domain.ErrNoLines,
			},
			{
				name:        "missing product id",
				input:       CreateReservationInput{DropID: "drop-1", UserID: "u1", Lines: []domain.ReservationLine{{Quantity: 1}}},
				expectedErr: domain.ErrProductIDRequired,
			},
			{
				name:        "zero quantity",
				input:       CreateReservationInput{DropID: "drop-1", UserID: "u1", Lines: []domain.ReservationLine{{ProductID: "p1", Quantity: 0}}},
				expectedErr: domain.ErrInvalidQuantity,
			},
			{
				name:        "unknown product",
				input:       CreateReservationInput{DropID: "drop-1", UserID: "u1", Lines: []domain.ReservationLine{{ProductID: "p9", Quantity: 1}}},
				expectedErr: domain.ErrProductNotFound,
			},
		}

		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				if _, err := svc.Create(context.Background(), tt.input); err != tt.expectedErr {
					t.Fatalf("expected %v, got %v", tt.expectedErr, err)
				}
			})
		}
	})

	t.Run("too many lines", func(t *testing.T) {
		t.Parallel()
		repo := newFakeReservationRepo("drop-1", map[string]int{"p1": 10, "p2": 10, "p3": 10})
		svc := NewReservationService(repo, &stubAdmission{err: domain.ErrQueueNotFound}, clock.NewFixed(now), WithMaxLines(2))

		_, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u1",
			Lines: []domain.ReservationLine{
				{ProductID: "p1", Quantity: 1},
				{ProductID: "p2", Quantity: 1},
				{ProductID: "p3", Quantity: 1},
			},
		})
		if err != domain.ErrTooManyLines {
			t.Fatalf("expected ErrTooManyLines, got %v", err)
		}
	})

	t.Run("admission control", func(t *testing.T) {
		t.Parallel()
		lines := []domain.ReservationLine{{ProductID: "p1", Quantity: 1}}

		t.Run("queued user is rejected", func(t *testing.T) {
			repo := newFakeReservationRepo("drop-1", map[string]int{"p1": 10})
			svc := NewReservationService(repo, &stubAdmission{adm: domain.Admission{Status: domain.AdmissionQueued, Position: 4}}, clock.NewFixed(now))

			if _, err := svc.Create(context.Background(), CreateReservationInput{DropID: "drop-1", UserID: "u1", Lines: lines}); err != domain.ErrNotAdmitted {
				t.Fatalf("expected ErrNotAdmitted, got %v", err)
			}
		})

		t.Run("admitted user passes", func(t *testing.T) {
			repo := newFakeReservationRepo("drop-1", map[string]int{"p1": 10})
			svc := NewReservationService(repo, &stubAdmission{adm: domain.Admission{Status: domain.AdmissionAdmitted}}, clock.NewFixed(now))

			if _, err := svc.Create(context.Background(), CreateReservationInput{DropID: "drop-1", UserID: "u1", Lines: lines}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("no queue disables the check", func(t *testing.T) {
			repo := newFakeReservationRepo("drop-1", map[string]int{"p1": 10})
			svc := NewReservationService(repo, &stubAdmission{err: domain.ErrQueueNotFound}, clock.NewFixed(now))

			if _, err := svc.Create(context.Background(), CreateReservationInput{DropID: "drop-1", UserID: "u1", Lines: lines}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	})

	t.Run("concurrent creates never oversell", func(t *testing.T) {
		t.Parallel()
		svc, repo := makeSvc(map[string]int{"p1": 5})

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Create(context.Background(), CreateReservationInput{
					DropID: "drop-1",
					UserID: "u1",
					Lines:  []domain.ReservationLine{{ProductID: "p1", Quantity: 1}},
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
			} else if err != domain.ErrInsufficientStock {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != 5 {
			t.Fatalf("expected exactly 5 successes, got %d", succeeded)
		}
		if got := repo.products["p1"].Reserved; got != 5 {
			t.Fatalf("expected 5 reserved, got %d", got)
		}
	})
}

func TestReservationService_Get(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("reports overdue active reservation as expired", func(t *testing.T) {
		t.Parallel()
		clk := clock.NewManual(now)
		repo := newFakeReservationRepo("drop-1", map[string]int{"p1": 10})
		svc := NewReservationService(repo, &stubAdmission{err: domain.ErrQueueNotFound}, clk, WithReservationTTL(time.Minute))

		r, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u1",
			Lines:  []domain.ReservationLine{{ProductID: "p1", Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		if _, err := svc.Get(context.Background(), r.ID); err != nil {
			t.Fatalf("expected fresh reservation readable, got %v", err)
		}

		clk.Advance(2 * time.Minute)
		if _, err := svc.Get(context.Background(), r.ID); err != domain.ErrReservationExpired {
			t.Fatalf("expected ErrReservationExpired, got %v", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()
		repo := newFakeReservationRepo("drop-1", nil)
		svc := NewReservationService(repo, &stubAdmission{err: domain.ErrQueueNotFound}, clock.NewFixed(now))

		if _, err := svc.Get(context.Background(), "missing"); err != domain.ErrReservationNotFound {
			t.Fatalf("expected ErrReservationNotFound, got %v", err)
		}
	})
}

func TestReservationService_Update(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	seed := func(t *testing.T, stock map[string]int) (*ReservationService, *fakeReservationRepo, *clock.Manual, domain.Reservation) {
		t.Helper()
		clk := clock.NewManual(now)
		repo := newFakeReservationRepo("drop-1", stock)
		svc := NewReservationService(repo, &stubAdmission{err: domain.ErrQueueNotFound}, clk, WithReservationTTL(10*time.Minute))
		r, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u1",
			Lines:  []domain.ReservationLine{{ProductID: "p1", Quantity: 3}},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		return svc, repo, clk, r
	}

	t.Run("swaps quantities atomically", func(t *testing.T) {
		t.Parallel()
		svc, repo, _, r := seed(t, map[string]int{"p1": 10, "p2": 10})

		updated, err := svc.Update(context.Background(), r.ID, []domain.ReservationLine{
			{ProductID: "p2", Quantity: 4},
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if len(updated.Lines) != 1 || updated.Lines[0].ProductID != "p2" {
			t.Fatalf("expected p2 line, got %+v", updated.Lines)
		}
		if repo.products["p1"].Reserved != 0 || repo.products["p2"].Reserved != 4 {
			t.Fatalf("expected p1 released and p2 reserved, got %d/%d",
				repo.products["p1"].Reserved, repo.products["p2"].Reserved)
		}
	})

	t.Run("release before reserve lets a quantity increase use own stock", func(t *testing.T) {
		t.Parallel()
		svc, repo, _, r := seed(t, map[string]int{"p1": 5})

		// 3 of 5 held; raising to 5 only works if the old hold is released first.
		if _, err := svc.Update(context.Background(), r.ID, []domain.ReservationLine{
			{ProductID: "p1", Quantity: 5},
		}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if got := repo.products["p1"].Reserved; got != 5 {
			t.Fatalf("expected 5 reserved, got %d", got)
		}
	})

	t.Run("insufficient stock restores old lines", func(t *testing.T) {
		t.Parallel()
		svc, repo, _, r := seed(t, map[string]int{"p1": 5})

		if _, err := svc.Update(context.Background(), r.ID, []domain.ReservationLine{
			{ProductID: "p1", Quantity: 6},
		}); err != domain.ErrInsufficientStock {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
		if got := repo.products["p1"].Reserved; got != 3 {
			t.Fatalf("expected original hold intact, got %d reserved", got)
		}
	})

	t.Run("expired reservation", func(t *testing.T) {
		t.Parallel()
		svc, _, clk, r := seed(t, map[string]int{"p1": 10})

		clk.Advance(11 * time.Minute)
		if _, err := svc.Update(context.Background(), r.ID, []domain.ReservationLine{
			{ProductID: "p1", Quantity: 1},
		}); err != domain.ErrReservationExpired {
			t.Fatalf("expected ErrReservationExpired, got %v", err)
		}
	})

	t.Run("completed reservation", func(t *testing.T) {
		t.Parallel()
		svc, _, _, r := seed(t, map[string]int{"p1": 10})

		if _, err := svc.Complete(context.Background(), r.ID); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if _, err := svc.Update(context.Background(), r.ID, []domain.ReservationLine{
			{ProductID: "p1", Quantity: 1},
		}); err != domain.ErrInvalidStatus {
			t.Fatalf("expected ErrInvalidStatus, got %v", err)
		}
	})
}

func TestReservationService_CompleteAndCancel(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	seed := func(t *testing.T) (*ReservationService, *fakeReservationRepo, *clock.Manual, domain.Reservation) {
		t.Helper()
		clk := clock.NewManual(now)
		repo := newFakeReservationRepo("drop-1", map[string]int{"p1": 10})
		svc := NewReservationService(repo, &stubAdmission{err: domain.ErrQueueNotFound}, clk, WithReservationTTL(10*time.Minute))
		r, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u1",
			Lines:  []domain.ReservationLine{{ProductID: "p1", Quantity: 4}},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		return svc, repo, clk, r
	}

	t.Run("complete converts hold to sale", func(t *testing.T) {
		t.Parallel()
		svc, repo, _, r := seed(t)

		completed, err := svc.Complete(context.Background(), r.ID)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if completed.Status != domain.ReservationStatusCompleted {
			t.Fatalf("expected completed, got %s", completed.Status)
		}
		p := repo.products["p1"]
		if p.Reserved != 0 || p.Sold != 4 || p.Quantity != 6 {
			t.Fatalf("expected reserved=0 sold=4 quantity=6, got %+v", p)
		}
	})

	t.Run("cancel releases stock for others", func(t *testing.T) {
		t.Parallel()
		svc, repo, _, r := seed(t)

		cancelled, err := svc.Cancel(context.Background(), r.ID)
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if cancelled.Status != domain.ReservationStatusCancelled {
			t.Fatalf("expected cancelled, got %s", cancelled.Status)
		}
		p := repo.products["p1"]
		if p.Reserved != 0 || p.Sold != 0 || p.Quantity != 10 {
			t.Fatalf("expected stock fully restored, got %+v", p)
		}

		// The freed quantity is immediately reservable again.
		if _, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u2",
			Lines:  []domain.ReservationLine{{ProductID: "p1", Quantity: 10}},
		}); err != nil {
			t.Fatalf("expected freed stock reservable, got %v", err)
		}
	})

	t.Run("complete after deadline is refused", func(t *testing.T) {
		t.Parallel()
		svc, _, clk, r := seed(t)

		clk.Advance(11 * time.Minute)
		if _, err := svc.Complete(context.Background(), r.ID); err != domain.ErrReservationExpired {
			t.Fatalf("expected ErrReservationExpired, got %v", err)
		}
	})

	t.Run("double finish is refused", func(t *testing.T) {
		t.Parallel()
		svc, _, _, r := seed(t)

		if _, err := svc.Complete(context.Background(), r.ID); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if _, err := svc.Cancel(context.Background(), r.ID); err != domain.ErrInvalidStatus {
			t.Fatalf("expected ErrInvalidStatus, got %v", err)
		}
	})
}

func TestReservationService_ExpireDue(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("expires overdue and releases stock", func(t *testing.T) {
		t.Parallel()
		clk := clock.NewManual(now)
		repo := newFakeReservationRepo("drop-1", map[string]int{"p1": 10})
		svc := NewReservationService(repo, &stubAdmission{err: domain.ErrQueueNotFound}, clk, WithReservationTTL(time.Minute))

		first, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u1",
			Lines:  []domain.ReservationLine{{ProductID: "p1", Quantity: 2}},
		})
		if err != nil {
			t.Fatalf("create first: %v", err)
		}

		clk.Advance(30 * time.Second)
		second, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u2",
			Lines:  []domain.ReservationLine{{ProductID: "p1", Quantity: 3}},
		})
		if err != nil {
			t.Fatalf("create second: %v", err)
		}

		// Only the first reservation is past its deadline.
		clk.Advance(45 * time.Second)
		expired, err := svc.ExpireDue(context.Background(), 100)
		if err != nil {
			t.Fatalf("expire due: %v", err)
		}
		if expired != 1 {
			t.Fatalf("expected 1 expired, got %d", expired)
		}
		if got := repo.reservations[first.ID].Status; got != domain.ReservationStatusExpired {
			t.Fatalf("expected first expired, got %s", got)
		}
		if got := repo.reservations[second.ID].Status; got != domain.ReservationStatusActive {
			t.Fatalf("expected second still active, got %s", got)
		}
		if got := repo.products["p1"].Reserved; got != 3 {
			t.Fatalf("expected only second hold remaining, got %d reserved", got)
		}
	})

	t.Run("sweep loses to a racing complete", func(t *testing.T) {
		t.Parallel()
		clk := clock.NewManual(now)
		repo := newFakeReservationRepo("drop-1", map[string]int{"p1": 10})
		svc := NewReservationService(repo, &stubAdmission{err: domain.ErrQueueNotFound}, clk, WithReservationTTL(time.Minute))

		r, err := svc.Create(context.Background(), CreateReservationInput{
			DropID: "drop-1",
			UserID: "u1",
			Lines:  []domain.ReservationLine{{ProductID: "p1", Quantity: 2}},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := svc.Complete(context.Background(), r.ID); err != nil {
			t.Fatalf("complete: %v", err)
		}

		clk.Advance(2 * time.Minute)
		expired, err := svc.ExpireDue(context.Background(), 100)
		if err != nil {
			t.Fatalf("expire due: %v", err)
		}
		if expired != 0 {
			t.Fatalf("expected no expirations, got %d", expired)
		}
		p := repo.products["p1"]
		if p.Sold != 2 || p.Reserved != 0 {
			t.Fatalf("expected sale preserved, got %+v", p)
		}
	})
}

type stubAdmission struct {
	adm domain.Admission
	err error
}

func (s *stubAdmission) Status(_ context.Context, _, _ string) (domain.Admission, error) {
	return s.adm, s.err
}

type fakeProduct struct {
	DropID   string
	Quantity int
	Reserved int
	Sold     int
}

// fakeReservationRepo applies stock mutations in place and emulates
// transaction rollback by snapshotting state before each WithTx body.
type fakeReservationRepo struct {
	mu           sync.Mutex
	products     map[string]*fakeProduct
	reservations map[string]domain.Reservation
}

func newFakeReservationRepo(dropID string, stock map[string]int) *fakeReservationRepo {
	products := make(map[string]*fakeProduct, len(stock))
	for id, quantity := range stock {
		products[id] = &fakeProduct{DropID: dropID, Quantity: quantity}
	}
	return &fakeReservationRepo{
		products:     products,
		reservations: make(map[string]domain.Reservation),
	}
}

func (f *fakeReservationRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	productSnapshot := make(map[string]*fakeProduct, len(f.products))
	for id, p := range f.products {
		cp := *p
		productSnapshot[id] = &cp
	}
	reservationSnapshot := make(map[string]domain.Reservation, len(f.reservations))
	for id, r := range f.reservations {
		reservationSnapshot[id] = r
	}

	if err := fn(ctx); err != nil {
		f.products = productSnapshot
		f.reservations = reservationSnapshot
		return err
	}
	return nil
}

func (f *fakeReservationRepo) ReserveStock(_ context.Context, dropID, productID string, quantity int) error {
	p, ok := f.products[productID]
	if !ok || p.DropID != dropID {
		return domain.ErrProductNotFound
	}
	if p.Quantity-p.Reserved < quantity {
		return domain.ErrInsufficientStock
	}
	p.Reserved += quantity
	return nil
}

func (f *fakeReservationRepo) ReleaseStock(_ context.Context, productID string, quantity int) error {
	p, ok := f.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Reserved -= quantity
	return nil
}

func (f *fakeReservationRepo) CommitStock(_ context.Context, productID string, quantity int) error {
	p, ok := f.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Reserved -= quantity
	p.Sold += quantity
	p.Quantity -= quantity
	return nil
}

func (f *fakeReservationRepo) CreateReservation(_ context.Context, r domain.Reservation) error {
	f.reservations[r.ID] = r
	return nil
}

func (f *fakeReservationRepo) GetReservation(_ context.Context, id string) (domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getLocked(id)
}

func (f *fakeReservationRepo) GetReservationForUpdate(_ context.Context, id string) (domain.Reservation, error) {
	return f.getLocked(id)
}

func (f *fakeReservationRepo) getLocked(id string) (domain.Reservation, error) {
	r, ok := f.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return r, nil
}

func (f *fakeReservationRepo) SaveReservationLines(_ context.Context, id string, lines []domain.ReservationLine, updatedAt time.Time) error {
	r, ok := f.reservations[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	r.Lines = append([]domain.ReservationLine{}, lines...)
	r.UpdatedAt = updatedAt
	f.reservations[id] = r
	return nil
}

func (f *fakeReservationRepo) TransitionStatus(_ context.Context, id string, from, to domain.ReservationStatus, updatedAt time.Time) (bool, error) {
	r, ok := f.reservations[id]
	if !ok {
		return false, domain.ErrReservationNotFound
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = updatedAt
	f.reservations[id] = r
	return true, nil
}

func (f *fakeReservationRepo) ListExpiredIDs(_ context.Context, now time.Time, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0)
	for id, r := range f.reservations {
		if r.Status == domain.ReservationStatusActive && !r.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}
