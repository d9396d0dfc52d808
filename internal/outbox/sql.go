package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/boda/internal/logging"
	"github.com/dmitrijs2005/boda/internal/models"
)

// Dialect selects placeholder style and migrations.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// SQLRepository implements Repository over database/sql.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	sealer  Sealer
	logger  logging.Logger
	now     func() time.Time
}

// NewSQLRepository returns a repository bound to an already migrated db.
func NewSQLRepository(db *sql.DB, dialect Dialect, opts ...Option) *SQLRepository {
	r := &SQLRepository{db: db, dialect: dialect, logger: logging.Nop{}, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close closes the underlying handle.
func (r *SQLRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Ping checks the database is reachable.
func (r *SQLRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return classify("ping outbox", err)
	}
	return nil
}

// rebind rewrites '?' placeholders to '$n' for Postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Enqueue inserts a new entry and returns the id assigned by the database.
func (r *SQLRepository) Enqueue(ctx context.Context, payload models.Payload) (int64, error) {
	data, err := payload.Marshal()
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload: %w", err)
	}
	stored, err := r.encode(data)
	if err != nil {
		return 0, err
	}

	query := r.rebind(`INSERT INTO outbox (payload, enqueued_at) VALUES (?, ?) RETURNING id`)

	var id int64
	err = r.db.QueryRowContext(ctx, query, stored, r.now().UTC().UnixMicro()).Scan(&id)
	if err != nil {
		return 0, classify("failed to insert outbox entry", err)
	}
	return id, nil
}

// ListPending returns all entries ordered by enqueue time, then id. Rows
// whose payload cannot be opened or decoded are logged and skipped; they
// stay in the table until dropped.
func (r *SQLRepository) ListPending(ctx context.Context) ([]models.OutboxEntry, error) {
	query := `SELECT id, payload, enqueued_at FROM outbox ORDER BY enqueued_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("failed to select outbox entries", err)
	}
	defer rows.Close()

	var pending []models.OutboxEntry
	for rows.Next() {
		var (
			e          models.OutboxEntry
			data       []byte
			enqueuedAt int64
		)
		if err := rows.Scan(&e.ID, &data, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		e.Payload, err = r.decodePayload(data)
		if err != nil {
			r.logger.Error(ctx, "skipping unreadable outbox entry", "id", e.ID, "error", err)
			continue
		}
		e.EnqueuedAt = time.UnixMicro(enqueuedAt).UTC()
		pending = append(pending, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("failed to iterate outbox entries", err)
	}
	return pending, nil
}

// DeleteByID removes the entry with the given id. Zero affected rows is fine.
func (r *SQLRepository) DeleteByID(ctx context.Context, id int64) error {
	query := r.rebind(`DELETE FROM outbox WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return classify("failed to delete outbox entry", err)
	}
	return nil
}

// Count returns the number of pending entries.
func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, classify("failed to count outbox entries", err)
	}
	return n, nil
}

func (r *SQLRepository) decodePayload(raw []byte) (models.Payload, error) {
	data, err := r.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to open payload: %w", err)
	}
	p, err := models.UnmarshalPayload(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return p, nil
}
