package outbox

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/boda/internal/common"
	"github.com/dmitrijs2005/boda/internal/logging"
	"github.com/dmitrijs2005/boda/internal/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func payload(name string) models.Payload {
	p := models.Payload{}
	p.Set("name", name)
	p.SetList("allergies", []string{"gluten", "nuts"})
	return p
}

func TestEnqueue_AssignsUniqueIncreasingIDs(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()

	seen := map[int64]bool{}
	var last int64
	for _, name := range []string{"A", "B", "C", "D"} {
		id, err := repo.Enqueue(ctx, payload(name))
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %d", id)
		assert.Greater(t, id, last)
		seen[id] = true
		last = id
	}

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestListPending_OldestFirstAndNonDestructive(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()

	base := time.Date(2026, 6, 20, 18, 0, 0, 0, time.UTC)
	// same instant twice and a clock step backwards
	times := []time.Time{base, base, base.Add(-time.Minute), base.Add(time.Hour)}
	for i, ts := range times {
		repo.now = func() time.Time { return ts }
		_, err := repo.Enqueue(ctx, payload(string(rune('A'+i))))
		require.NoError(t, err)
	}

	first, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, first, 4)

	ids := map[int64]bool{}
	for i := 1; i < len(first); i++ {
		assert.False(t, first[i].EnqueuedAt.Before(first[i-1].EnqueuedAt))
	}
	for _, e := range first {
		assert.False(t, ids[e.ID])
		ids[e.ID] = true
	}
	assert.Equal(t, "C", first[0].Payload.Get("name"))
	assert.Equal(t, "A", first[1].Payload.Get("name"))
	assert.Equal(t, "B", first[2].Payload.Get("name"))
	assert.Equal(t, "gluten, nuts", first[0].Payload.Get("allergies"))

	second, err := repo.ListPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestListPending_Empty(t *testing.T) {
	repo := openMemory(t)

	got, err := repo.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteByID_Idempotent(t *testing.T) {
	repo := openMemory(t)
	ctx := context.Background()

	keep, err := repo.Enqueue(ctx, payload("keep"))
	require.NoError(t, err)
	drop, err := repo.Enqueue(ctx, payload("drop"))
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByID(ctx, drop))
	require.NoError(t, repo.DeleteByID(ctx, drop))
	require.NoError(t, repo.DeleteByID(ctx, 999))

	got, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, keep, got[0].ID)
}

func TestOpen_FileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "data", "outbox.db")

	repo, err := Open(ctx, dsn)
	require.NoError(t, err)
	id, err := repo.Enqueue(ctx, payload("durable"))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = Open(ctx, dsn)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "durable", got[0].Payload.Get("name"))
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, DialectPostgres, DialectFor("postgres://u:p@db:5432/boda"))
	assert.Equal(t, DialectPostgres, DialectFor("postgresql://db/boda"))
	assert.Equal(t, DialectSQLite, DialectFor("data/outbox.db"))
	assert.Equal(t, DialectSQLite, DialectFor("sqlite://outbox.db"))
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{dialect: DialectPostgres}
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)", pg.rebind("INSERT INTO t (a, b) VALUES (?, ?)"))

	lite := &SQLRepository{dialect: DialectSQLite}
	assert.Equal(t, "DELETE FROM t WHERE id = ?", lite.rebind("DELETE FROM t WHERE id = ?"))
}

func newMockRepo(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLRepository(db, DialectPostgres), mock
}

func TestEnqueue_DiskFullSurfacesStorageFull(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO outbox").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.DiskFull, Message: "could not extend file"})

	_, err := repo.Enqueue(context.Background(), payload("A"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStorageFull)
	assert.Contains(t, err.Error(), "failed to insert outbox entry")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByID_ConnectionFailureIsUnavailable(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM outbox WHERE id = \\$1").
		WithArgs(int64(7)).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.AdminShutdown})

	err := repo.DeleteByID(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPending_UnclassifiedErrorIsWrapped(t *testing.T) {
	repo, mock := newMockRepo(t)
	boom := errors.New("boom")

	mock.ExpectQuery("SELECT id, payload, enqueued_at FROM outbox").WillReturnError(boom)

	_, err := repo.ListPending(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, common.ErrStorageFull)
}

func TestListPending_CorruptPayloadIsSkipped(t *testing.T) {
	repo, mock := newMockRepo(t)
	var buf bytes.Buffer
	WithLogger(logging.New(&buf, "debug"))(repo)

	good, err := payload("B").Marshal()
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "payload", "enqueued_at"}).
		AddRow(int64(1), []byte("{broken"), int64(0)).
		AddRow(int64(2), good, int64(1))
	mock.ExpectQuery("SELECT id, payload, enqueued_at FROM outbox").WillReturnRows(rows)

	pending, err := repo.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].ID)
	assert.Equal(t, "B", pending[0].Payload.Get("name"))
	assert.Contains(t, buf.String(), "skipping unreadable outbox entry")
	assert.Contains(t, buf.String(), `"id":1`)
}
