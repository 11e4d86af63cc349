package sandbox

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-go-golems/veriwire/pkg/bank"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Handler serves the ledger over the JSON API consumed by bank.HTTPClient.
type Handler struct {
	ledger *Ledger
	now    func() time.Time
	mux    *http.ServeMux
}

func NewHandler(ledger *Ledger) *Handler {
	h := &Handler{ledger: ledger, now: time.Now, mux: http.NewServeMux()}
	h.mux.HandleFunc("/payments", h.handleList)
	h.mux.HandleFunc("/payments/", h.handlePayment)
	h.mux.HandleFunc("/freeze_payee", h.handleFreeze)
	h.mux.HandleFunc("/schedule_specialist", h.handleSchedule)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": h.ledger.List()})
}

// handlePayment covers /payments/{pid}, /payments/{pid}/approve and
// /payments/{pid}/cancel.
func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/payments/"), "/")
	parts := strings.Split(rest, "/")
	pid, err := url.PathUnescape(parts[0])
	if err != nil || pid == "" {
		writeDetail(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		p, err := h.ledger.Get(pid)
		if err != nil {
			writeDetail(w, http.StatusNotFound, "Not Found")
			return
		}
		writeJSON(w, http.StatusOK, p)
	case len(parts) == 2 && (parts[1] == "approve" || parts[1] == "cancel"):
		if r.Method != http.MethodPost {
			writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		to := bank.StatusApproved
		if parts[1] == "cancel" {
			to = bank.StatusCanceled
		}
		p, changed, err := h.ledger.Transition(pid, to)
		if errors.Is(err, ErrPaymentNotFound) {
			writeDetail(w, http.StatusNotFound, "Not Found")
			return
		}
		if !changed {
			writeDetail(w, http.StatusConflict, fmt.Sprintf("already %s", p.Status))
			return
		}
		log.Info().Str("component", "bank-sandbox").Str("payment_id", p.ID).Str("status", string(p.Status)).Msg("payment transitioned")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": p.ID, "status": p.Status})
	default:
		writeDetail(w, http.StatusNotFound, "Not Found")
	}
}

func (h *Handler) handleFreeze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	payee := r.URL.Query().Get("payee")
	if payee == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "payee is required")
		return
	}
	ticket := "TKT-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	log.Info().Str("component", "bank-sandbox").Str("payee", payee).Str("ticket_id", ticket).Msg("payee frozen")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "payee": payee, "ticket_id": ticket})
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if r.URL.Query().Get("phone") == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "phone is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "scheduled_at": h.now().UTC().Format(time.RFC3339Nano)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
