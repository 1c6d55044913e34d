package mirror

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// pgxPool is the subset of *pgxpool.Pool the backend uses.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresBackend keeps the mirror in a PostgreSQL table.
type PostgresBackend struct {
	pool pgxPool
}

// NewPostgres wraps an existing pool. The schema must already be migrated.
func NewPostgres(pool pgxPool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// OpenPostgres connects to dsn, pings the server and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, unavailable("open postgres", fmt.Errorf("parse database DSN: %w", err))
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, unavailable("open postgres", fmt.Errorf("create connection pool: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("open postgres", fmt.Errorf("ping database: %w", err))
	}

	// goose needs database/sql; borrow a handle backed by the same pool.
	db := stdlib.OpenDBFromPool(pool)
	migrateErr := migrate(ctx, db, goose.DialectPostgres, "postgres")
	_ = db.Close()
	if migrateErr != nil {
		pool.Close()
		return nil, unavailable("migrate postgres", migrateErr)
	}
	return NewPostgres(pool), nil
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) List(ctx context.Context) ([]Entry, error) {
	query, args, err := psql.Select("id", "ts", "payload").
		From(mirrorTable).
		OrderBy("seq DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []entryRow
	if err := pgxscan.Select(ctx, b.pool, &rows, query, args...); err != nil {
		return nil, unavailable("list", err)
	}
	return toEntries(rows), nil
}

func (b *PostgresBackend) Prepend(ctx context.Context, e Entry, limit int) (int, error) {
	var count int
	err := b.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockMirror(ctx, tx); err != nil {
			return err
		}
		insert, args, err := psql.Insert(mirrorTable).
			Columns("id", "ts", "payload").
			Values(e.ID, e.Timestamp, []byte(e.Payload)).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insert, args...); err != nil {
			return err
		}
		if limit > 0 {
			stale := psql.Select("seq").From(mirrorTable).OrderBy("seq DESC").Offset(uint64(limit))
			if err := deleteLocked(ctx, tx, stale); err != nil {
				return err
			}
		}
		count, err = countMirror(ctx, tx)
		return err
	})
	if err != nil {
		return 0, writeFailed("save", err)
	}
	return count, nil
}

func (b *PostgresBackend) DeleteAt(ctx context.Context, index int) (int, error) {
	var count int
	err := b.inTx(ctx, func(tx pgx.Tx) error {
		target := psql.Select("seq").From(mirrorTable).OrderBy("seq DESC").Limit(1).Offset(uint64(index))
		if err := deleteLocked(ctx, tx, target); err != nil {
			return err
		}
		var err error
		count, err = countMirror(ctx, tx)
		return err
	})
	if err != nil {
		return 0, writeFailed("delete", err)
	}
	return count, nil
}

func (b *PostgresBackend) DeleteByID(ctx context.Context, id string) (bool, error) {
	query, args, err := psql.Delete(mirrorTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, err
	}
	tag, err := b.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, writeFailed("delete", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	if err := b.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (b *PostgresBackend) Close() error {
	if b == nil || b.pool == nil {
		return nil
	}
	b.pool.Close()
	return nil
}

func (b *PostgresBackend) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, rbErr)
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// lockMirror serializes writers for the rest of the transaction so the cap
// holds under concurrent saves.
func lockMirror(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext('history_mirror'))")
	return err
}

// deleteLocked row-locks the seq values selected by target and deletes them.
func deleteLocked(ctx context.Context, tx pgx.Tx, target sq.SelectBuilder) error {
	query, args, err := target.Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return err
	}
	var seqs []int64
	if err := pgxscan.Select(ctx, tx, &seqs, query, args...); err != nil {
		return err
	}
	if len(seqs) == 0 {
		return nil
	}
	del, args, err := psql.Delete(mirrorTable).Where(sq.Eq{"seq": seqs}).ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, del, args...)
	return err
}

func countMirror(ctx context.Context, tx pgx.Tx) (int, error) {
	query, args, err := psql.Select("COUNT(*)").From(mirrorTable).ToSql()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return int(count), nil
}
