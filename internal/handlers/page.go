package handlers

import (
	"context"
	"net/http"
	"path/filepath"

	"lungdetect/internal/config"
	"lungdetect/internal/logger"
	"lungdetect/internal/services"
	"lungdetect/internal/services/ai"
	"lungdetect/internal/site"
	"lungdetect/internal/web"
)

// IndexHandler renders the landing page.
func IndexHandler(content *site.Site, renderer *web.Renderer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		render(w, renderer, http.StatusOK, web.NewPageData(content), logger)
	}
}

// DetectHandler runs the classifier on an uploaded radiograph and renders
// the page with the findings. Any failure shows the same warning.
func DetectHandler(manager *services.Manager, content *site.Site, renderer *web.Renderer, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		data := web.NewPageData(content)

		upload, err := readUpload(w, r, cfg.MaxUploadSize)
		if err != nil {
			logger.Warning("Rejected upload from %s: %v", r.RemoteAddr, err)
			data.Warning = ai.UserWarning
			render(w, renderer, statusFor(err), data, logger)
			return
		}
		data.UploadName = filepath.Base(upload.Filename)

		ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout)
		defer cancel()

		result, err := manager.Analyze(ctx, upload)
		if err != nil {
			logger.Error("Analysis of %q failed: %v", upload.Filename, err)
			data.Warning = ai.UserWarning
			render(w, renderer, statusFor(err), data, logger)
			return
		}

		data.Result = result
		if result.Image != nil {
			data.ShowUpload(filepath.Base(upload.Filename), result.Image.Format, upload.Data)
		}
		render(w, renderer, http.StatusOK, data, logger)
	}
}

func render(w http.ResponseWriter, renderer *web.Renderer, status int, data *web.PageData, logger *logger.Logger) {
	if err := renderer.Render(w, status, data); err != nil {
		logger.Error("Failed to render page: %v", err)
		http.Error(w, ai.UserWarning, http.StatusInternalServerError)
	}
}
