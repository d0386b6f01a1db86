package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/smatracka/hotdrop/internal/app"
	"github.com/smatracka/hotdrop/internal/domain"
)

// ReservationService is the minimal interface needed for reservation
// endpoints past creation.
type ReservationService interface {
	Get(ctx context.Context, id string) (domain.Reservation, error)
	Update(ctx context.Context, id string, newLines []domain.ReservationLine) (domain.Reservation, error)
	Complete(ctx context.Context, id string) (domain.Reservation, error)
	Cancel(ctx context.Context, id string) (domain.Reservation, error)
}

// HandleReservations routes everything under /cart-reservations/. Paths:
//
//	/cart-reservations/{id}           GET, PUT
//	/cart-reservations/{id}/complete  POST
//	/cart-reservations/{id}/cancel    POST
func HandleReservations(svc ReservationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 2 || parts[0] != "cart-reservations" {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		id := parts[1]

		switch {
		case len(parts) == 2:
			handleReservation(w, r, svc, id)
		case len(parts) == 3 && parts[2] == "complete":
			handleReservationFinish(w, r, id, svc.Complete)
		case len(parts) == 3 && parts[2] == "cancel":
			handleReservationFinish(w, r, id, svc.Cancel)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func handleReservation(w http.ResponseWriter, r *http.Request, svc ReservationService, id string) {
	switch r.Method {
	case http.MethodGet:
		res, err := svc.Get(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeReservation(w, http.StatusOK, res)

	case http.MethodPut:
		var req updateReservationRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		res, err := svc.Update(r.Context(), id, toDomainLines(req.Products))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeReservation(w, http.StatusOK, res)

	default:
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	}
}

func handleReservationFinish(w http.ResponseWriter, r *http.Request, id string, op func(context.Context, string) (domain.Reservation, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}
	res, err := op(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeReservation(w, http.StatusOK, res)
}

func handleCreateReservation(w http.ResponseWriter, r *http.Request, svc ReservationCreator, dropID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, codeUserIDRequired, domain.ErrUserIDRequired.Error())
		return
	}

	var req createReservationRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	res, err := svc.Create(r.Context(), app.CreateReservationInput{
		DropID: dropID,
		UserID: userID,
		Lines:  toDomainLines(req.Products),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeReservation(w, http.StatusCreated, res)
}

func writeReservation(w http.ResponseWriter, status int, res domain.Reservation) {
	lines := make([]reservationLine, 0, len(res.Lines))
	for _, line := range res.Lines {
		lines = append(lines, reservationLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		})
	}
	resp := reservationResponse{
		ID:        res.ID,
		DropID:    res.DropID,
		UserID:    res.UserID,
		Products:  lines,
		Status:    string(res.Status),
		ExpiresAt: res.ExpiresAt,
		CreatedAt: res.CreatedAt,
		UpdatedAt: res.UpdatedAt,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func toDomainLines(lines []reservationLine) []domain.ReservationLine {
	out := make([]domain.ReservationLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, domain.ReservationLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		})
	}
	return out
}

type reservationLine struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type createReservationRequest struct {
	Products []reservationLine `json:"products"`
}

type updateReservationRequest struct {
	Products []reservationLine `json:"products"`
}

type reservationResponse struct {
	ID        string            `json:"id"`
	DropID    string            `json:"drop_id"`
	UserID    string            `json:"user_id"`
	Products  []reservationLine `json:"products"`
	Status    string            `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
