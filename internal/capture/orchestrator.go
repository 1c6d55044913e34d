package capture

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"parallelcamera/internal/gateway"
	"parallelcamera/internal/logging"
	"parallelcamera/internal/store"
)

// DefaultSessionID is used when a caller does not identify its session.
const DefaultSessionID = "default"

// RecordStore is the subset of the record store the capture flow writes to.
type RecordStore interface {
	GetCharacter(ctx context.Context, id int64) (*store.CharacterRecord, error)
	IncrementUsage(ctx context.Context, id int64) error
	InsertHistory(ctx context.Context, rec store.HistoryRecord) (int64, error)
}

// Mirror receives a copy of every saved record.
type Mirror interface {
	Save(ctx context.Context, payload json.RawMessage) (int, error)
}

// Orchestrator owns the capture sessions of all callers.
type Orchestrator struct {
	gateway gateway.Capabilities
	store   RecordStore
	mirror  Mirror
	logger  *slog.Logger
	now     func() time.Time

	sessionTTL time.Duration
	onProgress func(Snapshot)

	mu        sync.Mutex
	sessions  map[string]*Session
	lastPrune time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMirror pushes every saved record to m.
func WithMirror(m Mirror) Option {
	return func(o *Orchestrator) {
		o.mirror = m
	}
}

// WithSessionTTL sets how long an idle session is kept. Zero keeps sessions
// forever.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.sessionTTL = ttl
	}
}

// WithProgress registers a callback invoked after every state or step change.
func WithProgress(fn func(Snapshot)) Option {
	return func(o *Orchestrator) {
		o.onProgress = fn
	}
}

// New constructs an Orchestrator.
func New(caps gateway.Capabilities, records RecordStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:  caps,
		store:    records,
		logger:   logging.NewNop(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "capture")
	return o
}

// Session returns the session for id, creating it in the idle state if needed.
func (o *Orchestrator) Session(id string) *Session {
	if id == "" {
		id = DefaultSessionID
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	if o.sessionTTL > 0 && now.Sub(o.lastPrune) >= o.sessionTTL/4 {
		o.pruneLocked(now)
	}
	if s, ok := o.sessions[id]; ok {
		return s
	}
	s := &Session{id: id, orch: o, state: StateIdle, updatedAt: now}
	o.sessions[id] = s
	return s
}

// Prune drops sessions that have sat idle for longer than the session TTL and
// returns how many were removed.
func (o *Orchestrator) Prune() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pruneLocked(o.now())
}

func (o *Orchestrator) pruneLocked(now time.Time) int {
	o.lastPrune = now
	if o.sessionTTL <= 0 {
		return 0
	}
	removed := 0
	for id, s := range o.sessions {
		if s.idleSince(now) > o.sessionTTL {
			delete(o.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		o.logger.Debug("pruned idle capture sessions", slog.Int("removed", removed))
	}
	return removed
}

// SessionCount reports how many sessions are tracked.
func (o *Orchestrator) SessionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

func (o *Orchestrator) notify(s Snapshot) {
	if o.onProgress != nil {
		o.onProgress(s)
	}
}
