package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"lungdetect/internal/config"
	"lungdetect/internal/logger"
	"lungdetect/internal/middleware"
	"lungdetect/internal/repository/sqlite"
	"lungdetect/internal/routes"
	"lungdetect/internal/services"
	"lungdetect/internal/services/ai"
	"lungdetect/internal/services/ai/onnx"
	"lungdetect/internal/services/ai/opencv"
	"lungdetect/internal/services/storage"
	"lungdetect/internal/services/websocket"
	"lungdetect/internal/site"
	"lungdetect/internal/web"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config           *config.Config
	logger           *logger.Logger
	db               *sqlite.DB
	detectorServices []*ai.DetectorService
	bufferService    *storage.BufferService
	hubService       *websocket.HubService
	manager          *services.Manager
	handler          http.Handler
}

// NewBackend loads the model with the configured backend.
func NewBackend(cfg *config.Config, meta ai.Metadata) (ai.Backend, error) {
	switch cfg.ModelBackend {
	case config.BackendONNX:
		return onnx.New(cfg.ModelPath, cfg.OnnxRuntimeLib, meta)
	case config.BackendOpenCV:
		return opencv.New(cfg.ModelPath, cfg.ModelConfigPath, meta)
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.ModelBackend)
	}
}

// NewDetectorServices loads one copy of the model per worker.
func NewDetectorServices(cfg *config.Config, logger *logger.Logger) ([]*ai.DetectorService, error) {
	meta, err := ai.LoadMetadata(cfg.ModelMetadataPath)
	if err != nil {
		return nil, err
	}

	detectors := make([]*ai.DetectorService, 0, cfg.ProcessingWorkers)
	for i := 0; i < cfg.ProcessingWorkers; i++ {
		backend, err := NewBackend(cfg, meta) // załaduj model osobno
		if err != nil {
			for _, d := range detectors {
				d.Close()
			}
			return nil, fmt.Errorf("failed to load model for worker %d: %w", i, err)
		}
		detectors = append(detectors, ai.NewDetectorService(backend, meta, float32(cfg.Threshold), logger))
	}

	logger.Info("Loaded %s model %s for %d worker(s)", cfg.ModelBackend, cfg.ModelPath, len(detectors))
	return detectors, nil
}

// NewApp loads the model and builds every service.
func NewApp(cfg *config.Config, logger *logger.Logger) (*App, error) {
	detectors, err := NewDetectorServices(cfg, logger)
	if err != nil {
		return nil, err
	}

	a, err := New(cfg, logger, detectors)
	if err != nil {
		for _, d := range detectors {
			d.Close()
		}
		return nil, err
	}
	return a, nil
}

// New wires the app around already loaded detectors.
func New(cfg *config.Config, logger *logger.Logger, detectors []*ai.DetectorService) (*App, error) {
	if len(detectors) == 0 {
		return nil, errors.New("at least one detector is required")
	}

	content, err := site.Load(cfg.SiteConfigPath)
	if err != nil {
		return nil, err
	}
	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}

	a := &App{
		config:           cfg,
		logger:           logger,
		detectorServices: detectors,
		hubService:       websocket.NewHubService(logger),
	}

	deps := &routes.Dependencies{
		Config:     cfg,
		Logger:     logger,
		Site:       content,
		Renderer:   renderer,
		Thumbnails: site.NewThumbnails(site.ThumbnailSize, cfg.StaticDirectory, logger),
		Sessions:   middleware.NewSessions(middleware.SessionTTL),
	}

	if cfg.HistoryEnabled {
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		a.db = db
		analyses := sqlite.NewAnalysisRepository(db)
		a.bufferService = storage.NewBufferService(cfg.ImageDirectory, cfg.BufferLimit, logger, analyses)
		deps.Analyses = analyses
		deps.Findings = sqlite.NewFindingRepository(db)
	}

	a.manager = services.NewManager(detectors, a.bufferService, a.hubService, cfg, logger)
	deps.Manager = a.manager
	a.handler = routes.SetupRoutes(deps)

	return a, nil
}

// Handler returns the HTTP handler of the app.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(context.Background())
	var bg sync.WaitGroup

	if a.bufferService != nil {
		bg.Add(1)
		go func() {
			defer bg.Done()
			a.bufferService.Run(bgCtx, time.Duration(a.config.FlushInterval)*time.Second)
		}()
	}
	go a.hubService.Run()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("Lung abnormality detection server")
	a.logger.Info("URL: http://localhost:%d", a.config.Port)
	a.logger.Info("Model: %s (%s), threshold %.2f", a.config.ModelPath, a.config.ModelBackend, a.config.Threshold)
	if a.bufferService != nil {
		a.logger.Info("History: %s, images in %s", a.config.DatabasePath, a.config.ImageDirectory)
	}
	if !a.config.AdminEnabled() {
		a.logger.Warning("ADMIN_PASSWORD not set - admin endpoints disabled")
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		a.logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err = server.Shutdown(shutdownCtx)
		cancel()
	}

	a.manager.Stop()
	a.hubService.Stop()
	stopBackground()
	bg.Wait()
	a.Close()
	return err
}

// Close releases the database. The detectors are released by the manager.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database: %v", err)
		}
		a.db = nil
	}
}
