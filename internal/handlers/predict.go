package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"lungdetect/internal/config"
	"lungdetect/internal/dto"
	"lungdetect/internal/labels"
	"lungdetect/internal/logger"
	"lungdetect/internal/services"
	"lungdetect/internal/services/ai"
)

// TensorRequest carries an already preprocessed image.
type TensorRequest struct {
	Image []float32 `json:"image"`
}

// LabelsHandler returns the label catalog.
func LabelsHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, labels.All(), logger)
	}
}

// PredictHandler classifies a multipart upload and answers with JSON.
func PredictHandler(manager *services.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		upload, err := readUpload(w, r, cfg.MaxUploadSize)
		if err != nil {
			logger.Warning("Rejected API upload from %s: %v", r.RemoteAddr, err)
			writeAnalysisError(w, err, logger)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout)
		defer cancel()

		result, err := manager.Analyze(ctx, upload)
		if err != nil {
			logger.Error("API analysis of %q failed: %v", upload.Filename, err)
			writeAnalysisError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result, logger)
	}
}

// PredictTensorHandler classifies a JSON tensor of exactly the model input size.
func PredictTensorHandler(manager *services.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize)

		var req TensorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid JSON", Warning: ai.UserWarning}, logger)
			return
		}

		expected := manager.Metadata().InputSize()
		if len(req.Image) != expected {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
				Error:   fmt.Sprintf("Expected %d values, got %d", expected, len(req.Image)),
				Warning: ai.UserWarning,
			}, logger)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout)
		defer cancel()

		result, err := manager.AnalyzeTensor(ctx, req.Image)
		if err != nil {
			logger.Error("Tensor prediction failed: %v", err)
			writeAnalysisError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result, logger)
	}
}
