// Package outbox provides the durable queue of RSVP submissions that could
// not be delivered immediately.
//
// # Overview
//
// The package defines a Repository interface (Enqueue, ListPending,
// DeleteByID, Count) and a database/sql implementation, SQLRepository,
// that works against SQLite (modernc.org/sqlite, the default) or Postgres
// (pgx stdlib). Open picks the dialect from the DSN and applies the embedded
// goose migrations.
//
// # Data Model
//
// Each row holds an auto-increment id, the JSON-encoded payload and the
// enqueue time in microseconds since the epoch. Rows are never updated:
// an entry is created by Enqueue and removed by DeleteByID once a later
// delivery succeeds.
//
// # Concurrency
//
// Every operation is a single statement, atomic per key, so overlapping
// enqueue/delete calls cannot corrupt the queue and no locks are needed.
//
// # Errors
//
// Storage failures are returned wrapped. Disk-full and quota conditions
// match common.ErrStorageFull; connection-level failures match
// common.ErrStorageUnavailable.
//
// Typical Usage
//
//	repo, _ := outbox.Open(ctx, "data/outbox.db")
//	id, _ := repo.Enqueue(ctx, payload)
//	pending, _ := repo.ListPending(ctx)
//	_ = repo.DeleteByID(ctx, id)
package outbox
