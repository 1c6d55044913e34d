package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"parallelcamera/internal/capture"
	"parallelcamera/internal/config"
	"parallelcamera/internal/gateway"
	"parallelcamera/internal/logging"
	"parallelcamera/internal/mirror"
	"parallelcamera/internal/services"
	"parallelcamera/internal/store"
)

// RecordStore is the record store surface the REST endpoints use.
type RecordStore interface {
	ListHistory(ctx context.Context) ([]store.HistoryRecord, error)
	RecentHistory(ctx context.Context, limit int) ([]store.HistoryRecord, error)
	HistoryByMode(ctx context.Context, mode store.Mode) ([]store.HistoryRecord, error)
	GetHistory(ctx context.Context, id int64) (*store.HistoryRecord, error)
	DeleteHistory(ctx context.Context, id int64) (bool, error)
	HistoryStats(ctx context.Context) (store.HistoryStats, error)

	CreateCharacter(ctx context.Context, rec store.CharacterRecord) (int64, error)
	ListCharacters(ctx context.Context) ([]store.CharacterRecord, error)
	SearchCharacters(ctx context.Context, query string) ([]store.CharacterRecord, error)
	GetCharacter(ctx context.Context, id int64) (*store.CharacterRecord, error)
	UpdateCharacter(ctx context.Context, id int64, patch store.CharacterPatch) (*store.CharacterRecord, error)
	DeleteCharacter(ctx context.Context, id int64) (bool, error)
	MostUsed(ctx context.Context, limit int) ([]store.CharacterRecord, error)
	CharacterStats(ctx context.Context) (store.CharacterStats, error)

	Ping(ctx context.Context) error
}

// HistoryMirror is the mirror surface behind the history endpoints.
type HistoryMirror interface {
	List(ctx context.Context) ([]mirror.Entry, error)
	Save(ctx context.Context, payload json.RawMessage) (int, error)
	DeleteAt(ctx context.Context, index int) (int, error)
	DeleteByID(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Server routes to. Mirror may be nil.
type Deps struct {
	Store        RecordStore
	Gateway      gateway.Capabilities
	Orchestrator *capture.Orchestrator
	Mirror       HistoryMirror
	Logger       *slog.Logger
}

// Server is the HTTP surface of the daemon.
type Server struct {
	store   RecordStore
	gateway gateway.Capabilities
	orch    *capture.Orchestrator
	mirror  HistoryMirror
	logger  *slog.Logger

	maxBody int64
	handler http.Handler
}

// New wires the routes and middleware chain.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "httpapi", "new", "config required", nil)
	}
	if deps.Store == nil || deps.Gateway == nil || deps.Orchestrator == nil {
		return nil, services.Wrap(services.ErrConfiguration, "httpapi", "new", "store, gateway and orchestrator are required", nil)
	}
	auth, err := newAuthenticator(cfg.Server)
	if err != nil {
		return nil, err
	}

	logger := logging.NewComponentLogger(deps.Logger, "httpapi")
	s := &Server{
		store:   deps.Store,
		gateway: deps.Gateway,
		orch:    deps.Orchestrator,
		mirror:  deps.Mirror,
		logger:  logger,
		maxBody: int64(cfg.Server.MaxBodyMiB) << 20,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/analyze-image", s.handleAnalyzeImage)
	mux.HandleFunc("/generate-creative-element", s.handleCreativeElement)
	mux.HandleFunc("/generate-image", s.handleGenerateImage)
	mux.HandleFunc("/speech-to-text", s.handleSpeechToText)

	mux.HandleFunc("/get-history", s.handleGetMirror)
	mux.HandleFunc("/save-history", s.handleSaveMirror)
	mux.HandleFunc("/delete-history", s.handleDeleteMirror)

	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/history/stats", s.handleHistoryStats)
	mux.HandleFunc("/history/{id}", s.handleHistoryItem)

	mux.HandleFunc("/characters", s.handleCharacters)
	mux.HandleFunc("/characters/stats", s.handleCharacterStats)
	mux.HandleFunc("/characters/most-used", s.handleMostUsed)
	mux.HandleFunc("/characters/{id}", s.handleCharacterItem)

	mux.HandleFunc("/capture", s.handleCapture)
	mux.HandleFunc("/capture/status", s.handleCaptureStatus)
	mux.HandleFunc("/capture/cancel", s.handleCaptureCancel)
	mux.HandleFunc("/capture/reset", s.handleCaptureReset)

	s.handler = Chain(
		Recovery(logger),
		RequestID,
		Logger(logger),
		CORS,
		auth.Auth,
	)(mux)
	return s, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) log(r *http.Request) *slog.Logger {
	return logging.WithContext(r.Context(), s.logger)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, s.logger, status, payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, s.log(r), err)
}

// decode reads and validates a request body.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{ Validate() error }) error {
	if err := decodeJSON(w, r, s.maxBody, dst); err != nil {
		return err
	}
	return dst.Validate()
}

func allowMethod(w http.ResponseWriter, r *http.Request, logger *slog.Logger, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	writeMethodNotAllowed(w, logger)
	return false
}
