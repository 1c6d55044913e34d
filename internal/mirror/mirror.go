package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"parallelcamera/internal/config"
	"parallelcamera/internal/logging"
	"parallelcamera/internal/services"
)

// DefaultLimit is the mirror cap used when none is configured.
const DefaultLimit = 50

// Entry is one mirrored capture. Payload is the client's JSON record, kept
// verbatim.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// entryRow is the SQL row shape shared by the table backends.
type entryRow struct {
	ID        string `db:"id"`
	Timestamp int64  `db:"ts"`
	Payload   []byte `db:"payload"`
}

func (r entryRow) entry() Entry {
	return Entry{ID: r.ID, Timestamp: r.Timestamp, Payload: json.RawMessage(r.Payload)}
}

func toEntries(rows []entryRow) []Entry {
	entries := make([]Entry, len(rows))
	for i, row := range rows {
		entries[i] = row.entry()
	}
	return entries
}

// Backend stores mirror entries newest first.
type Backend interface {
	// List returns every entry, newest first.
	List(ctx context.Context) ([]Entry, error)
	// Prepend stores e as the newest entry and drops everything past limit.
	// It returns the number of entries kept.
	Prepend(ctx context.Context, e Entry, limit int) (int, error)
	// DeleteAt removes the entry at the newest-first index. An out of range
	// index removes nothing.
	DeleteAt(ctx context.Context, index int) (int, error)
	// DeleteByID removes the entry with id and reports whether it existed.
	DeleteByID(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
	Name() string
}

// Service applies the mirror cap on top of a Backend.
type Service struct {
	backend Backend
	limit   int
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps backend with the given cap.
func New(backend Backend, limit int, logger *slog.Logger, opts ...Option) *Service {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s := &Service{
		backend: backend,
		limit:   limit,
		logger:  logging.NewComponentLogger(logger, "mirror"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open builds the backend selected by cfg.Mirror.Backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "mirror", "open", "config required", nil)
	}
	var (
		backend Backend
		err     error
	)
	switch name := strings.ToLower(strings.TrimSpace(cfg.Mirror.Backend)); name {
	case config.MirrorSQLite, "":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, services.Wrap(services.ErrStoreUnavailable, "mirror", "open", "ensure directories", err)
		}
		backend, err = OpenSQLite(ctx, cfg.MirrorPath())
	case config.MirrorPostgres:
		backend, err = OpenPostgres(ctx, cfg.Mirror.PostgresDSN)
	case config.MirrorNATS:
		backend, err = OpenNATS(ctx, cfg.Mirror.NATSURL, cfg.Mirror.NATSBucket)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "mirror", "open", fmt.Sprintf("unsupported backend %q", name), nil)
	}
	if err != nil {
		return nil, err
	}
	svc := New(backend, cfg.Mirror.Limit, logger)
	svc.logger.Info("history mirror ready",
		logging.String("backend", backend.Name()),
		logging.Int("limit", svc.limit),
	)
	return svc, nil
}

// Limit returns the cap applied on every save.
func (s *Service) Limit() int {
	return s.limit
}

// Backend reports the name of the storage backend.
func (s *Service) Backend() string {
	return s.backend.Name()
}

// List returns the mirrored entries, newest first.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	entries, err := s.backend.List(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Save prepends payload and trims the mirror to its cap. It returns the
// number of entries kept.
func (s *Service) Save(ctx context.Context, payload json.RawMessage) (int, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "null" {
		return 0, services.NewValidationError("payload", "is required")
	}
	if !json.Valid([]byte(trimmed)) {
		return 0, services.NewValidationError("payload", "must be valid JSON")
	}
	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: s.now().UnixMilli(),
		Payload:   json.RawMessage(trimmed),
	}
	count, err := s.backend.Prepend(ctx, entry, s.limit)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("mirror entry saved",
		logging.String("entry_id", entry.ID),
		logging.Int("count", count),
	)
	return count, nil
}

// DeleteAt removes the entry at the newest-first index and returns the
// remaining count. A negative or out of range index is a no-op.
func (s *Service) DeleteAt(ctx context.Context, index int) (int, error) {
	if index < 0 {
		entries, err := s.backend.List(ctx)
		if err != nil {
			return 0, err
		}
		return len(entries), nil
	}
	return s.backend.DeleteAt(ctx, index)
}

// DeleteByID removes the entry with id.
func (s *Service) DeleteByID(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return services.NewValidationError("id", "is required")
	}
	found, err := s.backend.DeleteByID(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return services.Wrap(services.ErrNotFound, "mirror", "delete", fmt.Sprintf("entry %s", id), nil)
	}
	return nil
}

// Ping checks that the backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases the backend.
func (s *Service) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

func unavailable(operation string, err error) error {
	return services.Wrap(services.ErrStoreUnavailable, "mirror", operation, "", err)
}

func writeFailed(operation string, err error) error {
	return services.Wrap(services.ErrWrite, "mirror", operation, "", err)
}
