package handlers

import (
	"net/http"

	"lungdetect/internal/config"
	"lungdetect/internal/logger"
	"lungdetect/internal/services"
)

// HealthStatus is the liveness payload.
type HealthStatus struct {
	Status      string  `json:"status"`
	Backend     string  `json:"backend"`
	Workers     int     `json:"workers"`
	QueueLength int     `json:"queueLength"`
	Threshold   float64 `json:"threshold"`
	History     bool    `json:"history"`
	Viewers     int     `json:"viewers"`
}

func HealthHandler(manager *services.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:      "healthy",
			Backend:     cfg.ModelBackend,
			Workers:     manager.Workers(),
			QueueLength: manager.QueueLength(),
			Threshold:   cfg.Threshold,
			History:     manager.GetBufferService() != nil,
		}
		if hub := manager.GetWebsocketService(); hub != nil {
			status.Viewers = hub.GetClientCount()
		}
		writeJSON(w, http.StatusOK, status, logger)
	}
}
