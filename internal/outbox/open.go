package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/boda/internal/common"
	"github.com/dmitrijs2005/boda/internal/cryptox"
	"github.com/dmitrijs2005/boda/internal/filex"
	"github.com/dmitrijs2005/boda/internal/logging"
	"github.com/dmitrijs2005/boda/internal/outbox/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// DialectFor reports the dialect a DSN selects: postgres:// and
// postgresql:// URLs use Postgres, anything else is a SQLite path.
func DialectFor(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// sqliteDSN strips an optional sqlite:// scheme and appends the pragmas the
// outbox relies on.
func sqliteDSN(dsn string) (path, full string) {
	path = strings.TrimPrefix(dsn, "sqlite://")
	if path == ":memory:" {
		return path, path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path, path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

// RunMigrations applies the embedded goose migrations for dialect.
func RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect) error {
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	dir := migrations.SQLiteDir
	if dialect == DialectPostgres {
		dir = migrations.PostgresDir
	}
	return goose.UpContext(ctx, db, dir)
}

// PassphraseOptions returns the options for an outbox logging to l whose
// payloads are sealed under passphrase. An empty passphrase stores payloads
// in plain JSON.
func PassphraseOptions(ctx context.Context, passphrase string, l logging.Logger) ([]Option, error) {
	opts := []Option{WithLogger(l)}
	if passphrase == "" {
		return opts, nil
	}
	s, err := cryptox.NewPassphraseSealer(passphrase, common.OutboxKeySalt)
	if err != nil {
		return nil, fmt.Errorf("outbox sealer: %w", err)
	}
	l.Info(ctx, "outbox payloads sealed", "key_id", s.KeyID())
	return append(opts, WithSealer(s)), nil
}

// Open connects to the outbox database named by dsn, applies migrations and
// returns a ready repository. The caller owns Close.
func Open(ctx context.Context, dsn string, opts ...Option) (*SQLRepository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("outbox dsn is required")
	}

	dialect := DialectFor(dsn)

	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectPostgres:
		db, err = sql.Open("pgx", dsn)
	default:
		path, full := sqliteDSN(dsn)
		if path != ":memory:" {
			if _, err := filex.EnsureParentDir(path); err != nil {
				return nil, err
			}
		}
		db, err = sql.Open("sqlite", full)
		if err == nil {
			// one writer; also keeps :memory: on a single connection
			db.SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open outbox db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify("ping outbox db", err)
	}

	if err := RunMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run outbox migrations: %w", err)
	}

	return NewSQLRepository(db, dialect, opts...), nil
}
