package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/smatracka/hotdrop/internal/domain"
)

// DropFinder checks drop existence before a warm task is accepted.
type DropFinder interface {
	GetDrop(ctx context.Context, id string) (domain.Drop, error)
}

// WarmEnqueuer hands manual warm requests to the background workers.
type WarmEnqueuer interface {
	EnqueueWarmDrop(ctx context.Context, dropID string) error
	EnqueueWarmSeller(ctx context.Context, sellerID string) error
}

// HandleAdmin routes everything under /admin/. Paths:
//
//	/admin/drops/{dropId}/warm     POST
//	/admin/sellers/{sellerId}/warm POST
func HandleAdmin(drops DropFinder, enqueuer WarmEnqueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 4 || parts[0] != "admin" || parts[3] != "warm" {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		switch parts[1] {
		case "drops":
			dropID := parts[2]
			if _, err := drops.GetDrop(r.Context(), dropID); err != nil {
				writeDomainError(w, err)
				return
			}
			if err := enqueuer.EnqueueWarmDrop(r.Context(), dropID); err != nil {
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				return
			}
			writeAccepted(w, warmAcceptedResponse{Target: "drop", ID: dropID})
		case "sellers":
			sellerID := parts[2]
			if err := enqueuer.EnqueueWarmSeller(r.Context(), sellerID); err != nil {
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
				return
			}
			writeAccepted(w, warmAcceptedResponse{Target: "seller", ID: sellerID})
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func writeAccepted(w http.ResponseWriter, resp warmAcceptedResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(resp)
}

type warmAcceptedResponse struct {
	Target string `json:"target"`
	ID     string `json:"id"`
}
