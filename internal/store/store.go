package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"parallelcamera/internal/config"
	"parallelcamera/internal/logging"
	"parallelcamera/internal/services"
)

// Store persists history and character records in a local SQLite database.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time

	historyLimit  int
	schemaVersion int

	historyMu    sync.Mutex
	charactersMu sync.Mutex
}

// Option customizes Open.
type Option func(*openOptions)

type openOptions struct {
	targetVersion int
	logger        *slog.Logger
	now           func() time.Time
}

// WithSchemaVersion opens the store at the given schema version instead of
// the latest one.
func WithSchemaVersion(version int) Option {
	return func(o *openOptions) {
		o.targetVersion = version
	}
}

// WithLogger attaches a logger used for non-fatal store events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// WithClock overrides the time source used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *openOptions) {
		o.now = now
	}
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open creates or connects to the record store and runs any pending schema
// upgrades up to the requested version.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	options := openOptions{targetVersion: LatestSchemaVersion, now: time.Now}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = logging.NewNop()
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "store", "open", "ensure directories", err)
	}

	dbPath := cfg.StorePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "store", "open", "open sqlite db", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, services.Wrap(services.ErrStoreUnavailable, "store", "open", fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}

	store := &Store{
		db:           db,
		path:         dbPath,
		logger:       logging.NewComponentLogger(options.logger, "store"),
		now:          options.now,
		historyLimit: cfg.Store.HistoryLimit,
	}
	version, err := store.upgrade(context.Background(), options.targetVersion)
	if err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStoreUnavailable, "store", "open", "upgrade schema", err)
	}
	store.schemaVersion = version
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// SchemaVersion returns the schema version the store is operating at.
func (s *Store) SchemaVersion() int {
	return s.schemaVersion
}

// Ping verifies the database connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ensureContext(ctx)); err != nil {
		return services.Wrap(services.ErrStoreUnavailable, "store", "ping", "", err)
	}
	return nil
}

func (s *Store) lockFor(collection Collection) *sync.Mutex {
	if collection == CollectionCharacters {
		return &s.charactersMu
	}
	return &s.historyMu
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// inTx runs fn inside a transaction, retrying the whole unit when SQLite
// reports the database as busy.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}
