package mirror

import (
	"context"
	"database/sql"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const mirrorTable = "history_mirror"

// SQLiteBackend keeps the mirror in its own SQLite file.
type SQLiteBackend struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenSQLite opens (or creates) the mirror database at path and applies its
// migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open sqlite", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("open sqlite", err)
	}
	if err := migrate(ctx, db, goose.DialectSQLite3, "sqlite"); err != nil {
		_ = db.Close()
		return nil, unavailable("migrate sqlite", err)
	}
	return &SQLiteBackend{db: db, path: path}, nil
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

// Path returns the database file location.
func (b *SQLiteBackend) Path() string { return b.path }

func (b *SQLiteBackend) List(ctx context.Context) ([]Entry, error) {
	query, args, err := sq.Select("id", "ts", "payload").
		From(mirrorTable).
		OrderBy("seq DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []entryRow
	if err := sqlscan.Select(ctx, b.db, &rows, query, args...); err != nil {
		return nil, unavailable("list", err)
	}
	return toEntries(rows), nil
}

func (b *SQLiteBackend) Prepend(ctx context.Context, e Entry, limit int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var count int
	err := b.inTx(ctx, func(tx *sql.Tx) error {
		insert, args, err := sq.Insert(mirrorTable).
			Columns("id", "ts", "payload").
			Values(e.ID, e.Timestamp, string(e.Payload)).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return err
		}
		if limit > 0 {
			keep := sq.Select("seq").From(mirrorTable).OrderBy("seq DESC").Limit(uint64(limit))
			trim, args, err := sq.Delete(mirrorTable).
				Where(sq.Expr("seq NOT IN (?)", keep)).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, trim, args...); err != nil {
				return err
			}
		}
		count, err = countRows(ctx, tx)
		return err
	})
	if err != nil {
		return 0, writeFailed("save", err)
	}
	return count, nil
}

func (b *SQLiteBackend) DeleteAt(ctx context.Context, index int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var count int
	err := b.inTx(ctx, func(tx *sql.Tx) error {
		target := sq.Select("seq").From(mirrorTable).OrderBy("seq DESC").Limit(1).Offset(uint64(index))
		del, args, err := sq.Delete(mirrorTable).Where(sq.Expr("seq IN (?)", target)).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, del, args...); err != nil {
			return err
		}
		count, err = countRows(ctx, tx)
		return err
	})
	if err != nil {
		return 0, writeFailed("delete", err)
	}
	return count, nil
}

func (b *SQLiteBackend) DeleteByID(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	del, args, err := sq.Delete(mirrorTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, err
	}
	res, err := b.db.ExecContext(ctx, del, args...)
	if err != nil {
		return false, writeFailed("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, writeFailed("delete", err)
	}
	return n > 0, nil
}

func (b *SQLiteBackend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLiteBackend) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func countRows(ctx context.Context, tx *sql.Tx) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From(mirrorTable).ToSql()
	if err != nil {
		return 0, err
	}
	var count int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
