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

// QueueService is the minimal interface needed for queue endpoints.
type QueueService interface {
	Initialize(ctx context.Context, dropID string, maxConcurrentUsers int) (domain.QueueState, error)
	UpdateCapacity(ctx context.Context, dropID string, maxConcurrentUsers int) (domain.QueueState, error)
	Join(ctx context.Context, dropID, userID string) (domain.Admission, error)
	Leave(ctx context.Context, dropID, userID string) error
	Status(ctx context.Context, dropID, userID string) (domain.Admission, error)
	Snapshot(ctx context.Context, dropID string) (app.QueueSnapshot, error)
}

// ReservationCreator is the reservation-side surface the drops routes need.
type ReservationCreator interface {
	Create(ctx context.Context, in app.CreateReservationInput) (domain.Reservation, error)
}

// HandleDrops routes everything under /drops/. Paths:
//
//	/drops/{dropId}/queue              GET, POST, PUT
//	/drops/{dropId}/queue/join         POST
//	/drops/{dropId}/queue/leave        POST
//	/drops/{dropId}/cart-reservations  POST
func HandleDrops(queues QueueService, reservations ReservationCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 3 || parts[0] != "drops" {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		dropID := parts[1]

		switch {
		case len(parts) == 3 && parts[2] == "queue":
			handleQueue(w, r, queues, dropID)
		case len(parts) == 4 && parts[2] == "queue" && parts[3] == "join":
			handleQueueJoin(w, r, queues, dropID)
		case len(parts) == 4 && parts[2] == "queue" && parts[3] == "leave":
			handleQueueLeave(w, r, queues, dropID)
		case len(parts) == 3 && parts[2] == "cart-reservations":
			handleCreateReservation(w, r, reservations, dropID)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func handleQueue(w http.ResponseWriter, r *http.Request, svc QueueService, dropID string) {
	switch r.Method {
	case http.MethodGet:
		snap, err := svc.Snapshot(r.Context(), dropID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp := queueStateResponse{
			DropID:             dropID,
			CurrentUsers:       snap.CurrentUsers,
			MaxConcurrentUsers: snap.MaxConcurrentUsers,
			Waiting:            snap.Waiting,
			UpdatedAt:          snap.UpdatedAt,
		}
		if userID := r.Header.Get("X-User-ID"); userID != "" {
			adm, err := svc.Status(r.Context(), dropID, userID)
			if err == nil {
				status := string(adm.Status)
				resp.Status = &status
				if adm.Status == domain.AdmissionQueued {
					resp.Position = &adm.Position
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)

	case http.MethodPost, http.MethodPut:
		var req queueConfigRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		var (
			state domain.QueueState
			err   error
		)
		if r.Method == http.MethodPost {
			state, err = svc.Initialize(r.Context(), dropID, req.MaxConcurrentUsers)
		} else {
			state, err = svc.UpdateCapacity(r.Context(), dropID, req.MaxConcurrentUsers)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := queueStateResponse{
			DropID:             state.DropID,
			CurrentUsers:       len(state.ActiveUsers),
			MaxConcurrentUsers: state.MaxConcurrentUsers,
			Waiting:            len(state.WaitingQueue),
			UpdatedAt:          state.UpdatedAt,
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
		}
		_ = json.NewEncoder(w).Encode(resp)

	default:
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	}
}

func handleQueueJoin(w http.ResponseWriter, r *http.Request, svc QueueService, dropID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, codeUserIDRequired, domain.ErrUserIDRequired.Error())
		return
	}

	adm, err := svc.Join(r.Context(), dropID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := admissionResponse{Status: string(adm.Status)}
	if adm.Status == domain.AdmissionQueued {
		resp.Position = &adm.Position
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func handleQueueLeave(w http.ResponseWriter, r *http.Request, svc QueueService, dropID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, codeUserIDRequired, domain.ErrUserIDRequired.Error())
		return
	}

	if err := svc.Leave(r.Context(), dropID, userID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(leaveResponse{Left: true})
}

type queueConfigRequest struct {
	MaxConcurrentUsers int `json:"max_concurrent_users"`
}

type queueStateResponse struct {
	DropID             string    `json:"drop_id"`
	CurrentUsers       int       `json:"current_users"`
	MaxConcurrentUsers int       `json:"max_concurrent_users"`
	Waiting            int       `json:"waiting"`
	UpdatedAt          time.Time `json:"updated_at"`
	Status             *string   `json:"status,omitempty"`
	Position           *int      `json:"position,omitempty"`
}

type admissionResponse struct {
	Status   string `json:"status"`
	Position *int   `json:"position,omitempty"`
}

type leaveResponse struct {
	Left bool `json:"left"`
}
