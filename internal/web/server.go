package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ecomsimply/repricer/internal/apply"
	"github.com/ecomsimply/repricer/internal/batch"
	"github.com/ecomsimply/repricer/internal/config"
	"github.com/ecomsimply/repricer/internal/logger"
	"github.com/ecomsimply/repricer/internal/pricing"
	"github.com/ecomsimply/repricer/internal/storage"
)

type Server struct {
	httpServer *http.Server
	repo       *storage.Repository
	engine     *pricing.Engine
	applier    *apply.Applier
	publisher  apply.Publisher
	processor  *batch.Processor
	config     *config.Config
	logger     *logger.Logger
}

func NewServer(
	repo *storage.Repository,
	engine *pricing.Engine,
	applier *apply.Applier,
	publisher apply.Publisher,
	processor *batch.Processor,
	cfg *config.Config,
	log *logger.Logger,
) *Server {
	s := &Server{
		repo:      repo,
		engine:    engine,
		applier:   applier,
		publisher: publisher,
		processor: processor,
		config:    cfg,
		logger:    log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rules", s.handleCreateRule)
	mux.HandleFunc("GET /api/rules", s.handleListRules)
	mux.HandleFunc("GET /api/rules/{id}", s.handleGetRule)
	mux.HandleFunc("PUT /api/rules/{id}", s.handleUpdateRule)
	mux.HandleFunc("DELETE /api/rules/{id}", s.handleDeleteRule)
	mux.HandleFunc("POST /api/pricing/calculate", s.handleCalculate)
	mux.HandleFunc("POST /api/pricing/publish", s.handlePublish)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/batches", s.handleCreateBatch)
	mux.HandleFunc("GET /api/batches/{id}", s.handleGetBatch)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("web server starting", "port", s.config.Web.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
