// Package admin exposes the operator routes of the edge under /admin/.
// Every route requires an HS256 bearer token minted with the edge secret.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/boda/internal/common"
	"github.com/dmitrijs2005/boda/internal/logging"
	"github.com/dmitrijs2005/boda/internal/models"
	"github.com/dmitrijs2005/boda/internal/resync"
	"github.com/dmitrijs2005/boda/internal/server/auth"
)

// Scheduler is the trigger surface of the resync scheduler.
type Scheduler interface {
	RequestSync(tag string) bool
	ConnectivityRestored()
	PeriodicUpdate(ctx context.Context) (updated, failed int, err error)
	Mode() resync.Mode
}

// Outbox lists pending entries.
type Outbox interface {
	ListPending(ctx context.Context) ([]models.OutboxEntry, error)
}

type Handler struct {
	scheduler Scheduler
	outbox    Outbox
	secret    []byte
	logger    logging.Logger
	mux       *http.ServeMux
}

func NewHandler(s Scheduler, o Outbox, secretKey string, l logging.Logger) *Handler {
	h := &Handler{
		scheduler: s,
		outbox:    o,
		secret:    []byte(secretKey),
		logger:    l.With("module", "admin"),
		mux:       http.NewServeMux(),
	}
	h.mux.HandleFunc("POST /admin/sync", h.sync)
	h.mux.HandleFunc("POST /admin/connectivity", h.connectivity)
	h.mux.HandleFunc("POST /admin/periodic-update", h.periodicUpdate)
	h.mux.HandleFunc("GET /admin/outbox", h.pending)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing token"})
		return
	}
	claims, err := auth.ParseToken(token, h.secret)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, common.ErrTokenExpired) {
			msg = "token expired"
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": msg})
		return
	}

	h.logger.Info(r.Context(), "admin request", "subject", claims.Subject, "method", r.Method, "path", r.URL.Path)
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		tag = common.SyncTag
	}
	// the periodic-sync tag runs a content refresh
	if tag == common.PeriodicUpdateTag {
		h.periodicUpdate(w, r)
		return
	}
	if !h.scheduler.RequestSync(tag) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown sync tag " + tag})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync requested"})
}

func (h *Handler) connectivity(w http.ResponseWriter, r *http.Request) {
	h.scheduler.ConnectivityRestored()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync requested", "mode": string(h.scheduler.Mode())})
}

func (h *Handler) periodicUpdate(w http.ResponseWriter, r *http.Request) {
	updated, failed, err := h.scheduler.PeriodicUpdate(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated, "failed": failed})
}

type pendingEntry struct {
	ID         int64             `json:"id"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	Fields     map[string]string `json:"fields"`
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	entries, err := h.outbox.ListPending(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), "list pending failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "outbox unavailable"})
		return
	}

	out := make([]pendingEntry, 0, len(entries))
	for _, e := range entries {
		fields := make(map[string]string, len(e.Payload))
		for _, k := range e.Payload.Keys() {
			fields[k] = e.Payload.Get(k)
		}
		out = append(out, pendingEntry{ID: e.ID, EnqueuedAt: e.EnqueuedAt, Fields: fields})
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": h.scheduler.Mode(), "pending": out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
