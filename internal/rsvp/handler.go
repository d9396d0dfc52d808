package rsvp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/dmitrijs2005/boda/internal/common"
	"github.com/dmitrijs2005/boda/internal/logging"
	"github.com/dmitrijs2005/boda/internal/models"
)

const maxBodyBytes = 64 << 10

// enqueueTimeout bounds the outbox write, which outlives the request.
const enqueueTimeout = 5 * time.Second

// Deliverer makes one delivery attempt.
type Deliverer interface {
	Attempt(ctx context.Context, payload models.Payload) error
}

// Enqueuer persists undelivered payloads.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload models.Payload) (int64, error)
}

// SyncRequester registers a background sync.
type SyncRequester interface {
	RequestSync(tag string) bool
}

// Result is the outcome of an accepted submission.
type Result struct {
	Status string `json:"status"`
	ID     int64  `json:"id,omitempty"`
}

const (
	StatusDelivered = "delivered"
	StatusQueued    = "queued"
)

type Handler struct {
	deliverer Deliverer
	outbox    Enqueuer
	sync      SyncRequester
	logger    logging.Logger
	now       func() time.Time
}

func NewHandler(d Deliverer, q Enqueuer, s SyncRequester, l logging.Logger) *Handler {
	return &Handler{
		deliverer: d,
		outbox:    q,
		sync:      s,
		logger:    l.With("module", "rsvp"),
		now:       time.Now,
	}
}

// Submit validates s, tries to deliver it once and queues it when that
// fails. Only validation and outbox errors are returned; a failed delivery
// is a queued result.
func (h *Handler) Submit(ctx context.Context, s Submission) (Result, error) {
	s.Normalize(h.now())
	if err := s.Validate(); err != nil {
		return Result{}, err
	}

	payload := s.ToPayload()

	err := h.deliverer.Attempt(ctx, payload)
	if err == nil {
		h.logger.Info(ctx, "rsvp delivered", "submission_id", s.SubmissionID)
		return Result{Status: StatusDelivered}, nil
	}
	h.logger.Warn(ctx, "rsvp delivery failed, saving offline", "submission_id", s.SubmissionID, "error", err)

	// the guest may already be gone; the entry must still be saved
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	id, err := h.outbox.Enqueue(qctx, payload)
	if err != nil {
		return Result{}, fmt.Errorf("save rsvp offline: %w", err)
	}
	if !h.sync.RequestSync(common.SyncTag) {
		h.logger.Warn(ctx, "background sync not registered", "tag", common.SyncTag)
	}

	h.logger.Info(ctx, "rsvp queued", "id", id, "submission_id", s.SubmissionID)
	return Result{Status: StatusQueued, ID: id}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	s, err := decode(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Submit(r.Context(), s)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusAccepted
	if res.Status == StatusDelivered {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func decode(r *http.Request) (Submission, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		var s Submission
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			return s, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return s, nil
	}

	if err := r.ParseForm(); err != nil {
		return Submission{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return FromForm(r.PostForm)
}

var errBadRequest = errors.New("malformed request")

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fe FieldErrors
	switch {
	case errors.As(err, &fe):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid submission", "fields": fe})
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	default:
		h.logger.Error(r.Context(), "rsvp not saved", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
