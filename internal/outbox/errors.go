package outbox

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/boda/internal/common"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// storageError keeps the driver error while matching a common sentinel.
type storageError struct {
	kind error
	err  error
}

func (e *storageError) Error() string { return e.err.Error() }

func (e *storageError) Unwrap() []error { return []error{e.kind, e.err} }

// classify wraps err with op and tags it with ErrStorageFull or
// ErrStorageUnavailable when the driver reports such a condition.
func classify(op string, err error) error {
	if kind := kindOf(err); kind != nil {
		err = &storageError{kind: kind, err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func kindOf(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3lib.SQLITE_FULL:
			return common.ErrStorageFull
		case sqlite3lib.SQLITE_CANTOPEN, sqlite3lib.SQLITE_IOERR, sqlite3lib.SQLITE_BUSY,
			sqlite3lib.SQLITE_LOCKED, sqlite3lib.SQLITE_READONLY, sqlite3lib.SQLITE_CORRUPT,
			sqlite3lib.SQLITE_NOTADB:
			return common.ErrStorageUnavailable
		}
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.DiskFull,
			pgErr.Code == pgerrcode.OutOfMemory,
			pgErr.Code == pgerrcode.InsufficientResources,
			pgErr.Code == pgerrcode.ProgramLimitExceeded:
			return common.ErrStorageFull
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgErr.Code == pgerrcode.TooManyConnections,
			pgErr.Code == pgerrcode.AdminShutdown,
			pgErr.Code == pgerrcode.CannotConnectNow:
			return common.ErrStorageUnavailable
		}
		return nil
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return common.ErrStorageUnavailable
	}
	return nil
}
