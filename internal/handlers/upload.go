package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"lungdetect/internal/dto"
	"lungdetect/internal/logger"
	"lungdetect/internal/services"
	"lungdetect/internal/services/ai"
)

// UploadField is the multipart field carrying the radiograph.
const UploadField = "image"

// readUpload pulls the radiograph out of a multipart request. Every
// failure is reported as ai.ErrInvalidImage.
func readUpload(w http.ResponseWriter, r *http.Request, maxSize int64) (dto.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20) // zapas na nagłówki multipart

	if err := r.ParseMultipartForm(maxSize); err != nil {
		return dto.Upload{}, fmt.Errorf("%w: %v", ai.ErrInvalidImage, err)
	}

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		return dto.Upload{}, fmt.Errorf("%w: no %q field: %v", ai.ErrInvalidImage, UploadField, err)
	}
	defer file.Close()

	if header.Size > maxSize {
		return dto.Upload{}, fmt.Errorf("%w: %d bytes exceeds limit", ai.ErrInvalidImage, header.Size)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return dto.Upload{}, fmt.Errorf("%w: %v", ai.ErrInvalidImage, err)
	}
	if int64(len(data)) > maxSize {
		return dto.Upload{}, fmt.Errorf("%w: upload exceeds limit", ai.ErrInvalidImage)
	}

	return dto.Upload{Filename: header.Filename, Data: data}, nil
}

// statusFor maps an analysis error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrBusy), errors.Is(err, services.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case services.IsUserError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// writeAnalysisError answers a failed analysis with the generic warning.
func writeAnalysisError(w http.ResponseWriter, err error, logger *logger.Logger) {
	status := statusFor(err)
	msg := http.StatusText(status)
	if errors.Is(err, services.ErrBusy) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, dto.ErrorResponse{Error: msg, Warning: ai.UserWarning}, logger)
}
