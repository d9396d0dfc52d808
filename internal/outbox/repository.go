package outbox

import (
	"context"

	"github.com/dmitrijs2005/boda/internal/models"
)

// Repository describes the durable outbox.
type Repository interface {
	// Enqueue persists the payload with a new unique id and the current time
	// and returns the id. Storage failures are always returned.
	Enqueue(ctx context.Context, payload models.Payload) (int64, error)

	// ListPending returns every stored entry, oldest first. It does not
	// modify the queue.
	ListPending(ctx context.Context) ([]models.OutboxEntry, error)

	// DeleteByID removes the entry if present. Deleting a missing id is not
	// an error.
	DeleteByID(ctx context.Context, id int64) error

	// Count returns the number of pending entries.
	Count(ctx context.Context) (int, error)
}
