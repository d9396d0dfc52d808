// Package resync drains the outbox against the live submission endpoint and
// turns external triggers (connectivity restored, background sync requested,
// periodic update) into drains.
package resync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/boda/internal/logging"
	"github.com/dmitrijs2005/boda/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

//go:generate mockgen -source=coordinator.go -destination=mock_deps_test.go -package=resync

// Store is the part of the outbox the coordinator needs.
type Store interface {
	ListPending(ctx context.Context) ([]models.OutboxEntry, error)
	DeleteByID(ctx context.Context, id int64) error
}

// Deliverer performs one delivery attempt.
type Deliverer interface {
	Attempt(ctx context.Context, payload models.Payload) error
}

// Summary counts the outcome of one drain.
type Summary struct {
	Succeeded int
	Failed    int
}

// Coordinator drains the outbox. Safe for concurrent use; overlapping
// Resync calls run one after another.
type Coordinator struct {
	store     Store
	deliverer Deliverer
	logger    logging.Logger

	mu sync.Mutex
}

func NewCoordinator(store Store, deliverer Deliverer, l logging.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		deliverer: deliverer,
		logger:    l.With("module", "resync"),
	}
}

// Resync attempts every pending entry once, in order. Delivered entries are
// deleted; failed ones stay for the next trigger and do not stop the rest.
//
// The returned error reports a failure to read the outbox, a cancelled
// context, or deletes that failed after a successful delivery (those entries
// will be delivered again later). Delivery failures are only counted.
func (c *Coordinator) Resync(ctx context.Context) (Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := otel.Tracer("github.com/dmitrijs2005/boda/internal/resync").Start(ctx, "resync")
	defer span.End()

	var summary Summary

	pending, err := c.store.ListPending(ctx)
	if err != nil {
		span.RecordError(err)
		return summary, fmt.Errorf("error retrieving pending entries: %w", err)
	}
	if len(pending) == 0 {
		return summary, nil
	}

	var deleteErrs []error
	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			deleteErrs = append(deleteErrs, err)
			break
		}

		if err := c.deliverer.Attempt(ctx, entry.Payload); err != nil {
			summary.Failed++
			c.logger.Warn(ctx, "failed to sync submission", "id", entry.ID, "error", err)
			continue
		}

		summary.Succeeded++
		if err := c.store.DeleteByID(ctx, entry.ID); err != nil {
			c.logger.Error(ctx, "submission delivered but not removed from outbox", "id", entry.ID, "error", err)
			deleteErrs = append(deleteErrs, fmt.Errorf("delete entry %d: %w", entry.ID, err))
		}
	}

	span.SetAttributes(
		attribute.Int("resync.succeeded", summary.Succeeded),
		attribute.Int("resync.failed", summary.Failed),
	)
	c.logger.Info(ctx, "resync finished", "succeeded", summary.Succeeded, "failed", summary.Failed)

	return summary, errors.Join(deleteErrs...)
}
