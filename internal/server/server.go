package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"StockPipeline/internal/recorder"
	"StockPipeline/internal/storage"
)

// Reader is the read path the API serves from.
type Reader interface {
	LoadLatestData(kind storage.Kind) (*storage.Table, error)
	ListSymbols(portfolio string, date time.Time) ([]string, error)
}

// Config holds server configuration
type Config struct {
	Addr     string
	Log      zerolog.Logger
	Reader   Reader
	Recorder recorder.Recorder
	// Now supplies the default date for symbol lookups.
	Now func() time.Time
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	reader Reader
	rec    recorder.Recorder
	now    func() time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Recorder == nil {
		cfg.Recorder = recorder.NewNoopRecorder()
	}
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		reader: cfg.Reader,
		rec:    cfg.Recorder,
		now:    cfg.Now,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/latest/{kind}", s.handleLatest)
		r.Get("/portfolios/{name}/symbols", s.handleSymbols)
		r.Get("/runs", s.handleRuns)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

type tableResponse struct {
	Kind    string     `json:"kind"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	kind, err := storage.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	table, err := s.reader.LoadLatestData(kind)
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to load latest data")
		s.writeError(w, http.StatusInternalServerError, "failed to load data")
		return
	}
	if table == nil {
		s.writeError(w, http.StatusNotFound, "no data saved for "+string(kind))
		return
	}
	rows := table.Rows
	if rows == nil {
		rows = [][]string{}
	}
	s.writeJSON(w, http.StatusOK, tableResponse{Kind: string(kind), Columns: table.Columns, Rows: rows})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	date := s.now()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(storage.DateLayout, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "date must be YYYYMMDD")
			return
		}
		date = d
	}

	symbols, err := s.reader.ListSymbols(name, date)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("portfolio", name).Msg("Failed to list symbols")
		s.writeError(w, http.StatusInternalServerError, "failed to list symbols")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio": name,
		"date":      date.Format(storage.DateLayout),
		"symbols":   symbols,
	})
}

type runResponse struct {
	ID        int64     `json:"id"`
	Scope     string    `json:"scope"`
	Portfolio string    `json:"portfolio,omitempty"`
	Date      string    `json:"date"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	OK        int       `json:"ok"`
	Empty     int       `json:"empty"`
	Failed    int       `json:"failed"`
	Files     int       `json:"files"`
	Error     string    `json:"error,omitempty"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.rec.RecentRuns(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read runs")
		s.writeError(w, http.StatusInternalServerError, "failed to read runs")
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponse{
			ID:        run.ID,
			Scope:     run.Scope,
			Portfolio: run.Portfolio,
			Date:      run.Date,
			StartedAt: run.StartedAt,
			Duration:  run.Duration.String(),
			OK:        run.OK,
			Empty:     run.Empty,
			Failed:    run.Failed,
			Files:     run.Files,
			Error:     run.Err,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
