// Package server provides the HTTP API for bunmyaku.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/config"
	"github.com/hyperjump/bunmyaku/internal/embedding"
	"github.com/hyperjump/bunmyaku/internal/vector"
	"github.com/hyperjump/bunmyaku/internal/window"
	"github.com/hyperjump/bunmyaku/pkg/utils"
)

// AssemblerFactory returns the window assembler for a conversation.
type AssemblerFactory func(conversationID string) (*window.Assembler, error)

// ConversationCounter reports how many conversations the resource store holds.
type ConversationCounter interface {
	CountConversations(ctx context.Context) (int64, error)
}

// Server is the HTTP server for the bunmyaku API.
type Server struct {
	registry   *vector.Registry
	embedder   embedding.Embedder
	assemblers AssemblerFactory
	counter    ConversationCounter
	config     *config.Config
	logger     *zap.Logger
	server     *http.Server

	// searches and window builds read the indices; item writes and persists need it exclusively
	indexMu sync.RWMutex
}

// NewServer creates a server with the given dependencies. counter may be nil.
func NewServer(
	registry *vector.Registry,
	embedder embedding.Embedder,
	assemblers AssemblerFactory,
	counter ConversationCounter,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		registry:   registry,
		embedder:   embedder,
		assemblers: assemblers,
		counter:    counter,
		config:     cfg,
		logger:     utils.LoggerOrNop(logger),
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/search", s.handleSearch)
		r.Post("/conversations/{id}/window", s.handleBuildWindow)
		r.Post("/conversations/{id}/log", s.handleAppendLog)
		r.Post("/indices/{scope}/items", s.handleAddItem)
		r.Post("/indices/{scope}/persist", s.handlePersist)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
