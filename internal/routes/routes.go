package routes

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"lungdetect/internal/config"
	"lungdetect/internal/handlers"
	"lungdetect/internal/logger"
	"lungdetect/internal/middleware"
	"lungdetect/internal/repository"
	"lungdetect/internal/services"
	"lungdetect/internal/site"
	"lungdetect/internal/web"
)

// Dependencies are the services the HTTP layer is built from.
type Dependencies struct {
	Manager    *services.Manager
	Config     *config.Config
	Logger     *logger.Logger
	Site       *site.Site
	Renderer   *web.Renderer
	Thumbnails *site.Thumbnails
	Sessions   *middleware.Sessions
	Analyses   repository.AnalysisRepository // nil when history is disabled
	Findings   repository.FindingRepository
}

// dynamicHTMLHandler serves /path as <static>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.Trim(r.URL.Path, "/")
		if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
			http.NotFound(w, r)
			return
		}

		filePath := filepath.Join(staticDir, name+".html")
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers the page, API, history, log and auth endpoints and
// wraps the mux with the authentication middleware.
func SetupRoutes(deps *Dependencies) http.Handler {
	cfg, logger, manager := deps.Config, deps.Logger, deps.Manager
	mux := http.NewServeMux()
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDirectory))))

	// Page
	index := handlers.IndexHandler(deps.Site, deps.Renderer, logger)
	pages := dynamicHTMLHandler(cfg.StaticDirectory)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			index(w, r)
			return
		}
		pages(w, r)
	})
	mux.HandleFunc("/detect", limiter.Wrap(handlers.DetectHandler(manager, deps.Site, deps.Renderer, cfg, logger)))
	mux.HandleFunc("/demos/detect", handlers.DemoDetectHandler(deps.Site, deps.Renderer, cfg.DemoDelay, logger))
	mux.HandleFunc("/demos/image", handlers.DemoImageHandler(deps.Site, deps.Thumbnails, logger))

	// API endpoints
	mux.HandleFunc("/health", handlers.HealthHandler(manager, cfg, logger))
	mux.HandleFunc("/api/demos", handlers.DemosHandler(deps.Site, logger))
	mux.HandleFunc("/api/labels", handlers.LabelsHandler(logger))
	mux.HandleFunc("/api/predict", limiter.Wrap(handlers.PredictHandler(manager, cfg, logger)))
	mux.HandleFunc("/api/predict/tensor", limiter.Wrap(handlers.PredictTensorHandler(manager, cfg, logger)))

	if hub := manager.GetWebsocketService(); hub != nil {
		mux.HandleFunc("/api/events", handlers.EventsWebsocketHandler(hub, logger))
	}

	// History endpoints
	if buffer := manager.GetBufferService(); buffer != nil && deps.Analyses != nil {
		mux.HandleFunc("/api/history", handlers.HistoryHandler(deps.Analyses, deps.Findings, logger))
		mux.HandleFunc("/api/history/view", handlers.ViewHistoryImageHandler(buffer.ImagesDir()))
		mux.HandleFunc("/api/history/stats", handlers.HistoryStatsHandler(deps.Analyses, deps.Findings, logger))
		mux.HandleFunc("/api/history/delete", handlers.DeleteHistoryHandler(buffer, logger))
		mux.HandleFunc("/api/history/clear", handlers.ClearHistoryHandler(buffer, logger))
	}

	// Log endpoints
	for _, name := range []string{"info", "warning", "error"} {
		file := name + ".log"
		mux.HandleFunc("/logs/"+name, handlers.ShowLogsHandler(logger, file))
		mux.HandleFunc("/logs/"+name+"/clear", handlers.ClearLogsHandler(logger, file))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handlers.LoginHandler(cfg, deps.Sessions, logger))
	mux.HandleFunc("/auth/logout", handlers.LogoutHandler(deps.Sessions))

	return middleware.AuthMiddleware(deps.Sessions, cfg.AdminEnabled(), mux)
}
