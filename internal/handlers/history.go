package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"lungdetect/internal/dto"
	"lungdetect/internal/labels"
	"lungdetect/internal/logger"
	"lungdetect/internal/models"
	"lungdetect/internal/repository"
	"lungdetect/internal/services/storage"
)

// HistoryStats is the payload of the stats endpoint.
type HistoryStats struct {
	TotalAnalyses    int            `json:"totalAnalyses"`
	AbnormalAnalyses int            `json:"abnormalAnalyses"`
	TotalSizeBytes   int64          `json:"totalSizeBytes"`
	LabelCounts      map[string]int `json:"labelCounts"`
	Labels           []string       `json:"labels"`
}

// HistoryHandler returns stored analyses from the database, filtered and paginated.
func HistoryHandler(analyses repository.AnalysisRepository, findings repository.FindingRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		filter := &models.AnalysisFilter{
			Label:     q.Get("label"),
			Status:    q.Get("status"),
			StartDate: parseDate(q.Get("dateAfter")),
			EndDate:   parseDate(q.Get("dateBefore")),
			Limit:     limit,
			Offset:    (page - 1) * limit,
		}

		rows, err := analyses.GetAll(filter)
		if err != nil {
			logger.Error("Error querying analyses from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := analyses.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting analyses: %v", err)
			totalCount = len(rows)
		}

		var totalSize int64
		items := make([]dto.HistoryItem, 0, len(rows))
		for _, a := range rows {
			keys, err := findings.GetPositiveKeysByAnalysisID(a.ID)
			if err != nil {
				logger.Error("Failed to get findings for %s: %v", a.ID, err)
				keys = []string{}
			}
			totalSize += a.FileSize
			items = append(items, dto.HistoryItem{
				ID:           a.ID,
				Filename:     a.Filename,
				OriginalName: a.OriginalName,
				Date:         a.CreatedAt,
				TimeOfDay:    a.CreatedAt,
				Summary:      summaryFor(keys),
				Labels:       keys,
			})
		}

		data := dto.HistoryPage{
			Items:       items,
			Size:        totalSize,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}
		writeJSON(w, http.StatusOK, data, logger)
	}
}

func summaryFor(keys []string) string {
	found := make([]labels.Label, 0, len(keys))
	for _, k := range keys {
		if l, ok := labels.ByKey(k); ok {
			found = append(found, l)
		}
	}
	return labels.Summary(found)
}

// ViewHistoryImageHandler serves a stored upload named by the "image" query parameter.
func ViewHistoryImageHandler(imagesDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		image := r.URL.Query().Get("image")
		if image == "" {
			http.Error(w, "Image parameter is required", http.StatusBadRequest)
			return
		}
		if filepath.Base(image) != image || image == "." || image == ".." {
			http.Error(w, "Invalid image name", http.StatusBadRequest)
			return
		}

		filePath := filepath.Join(imagesDir, image)
		if _, err := os.Stat(filePath); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filePath)
	}
}

// HistoryStatsHandler returns totals and per-label counts.
func HistoryStatsHandler(analyses repository.AnalysisRepository, findings repository.FindingRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := analyses.GetStats()
		if err != nil {
			logger.Error("Failed to get stats: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		keys, err := findings.GetAllPositiveKeys()
		if err != nil {
			logger.Error("Failed to get labels: %v", err)
			keys = []string{}
		}

		writeJSON(w, http.StatusOK, HistoryStats{
			TotalAnalyses:    stats.TotalAnalyses,
			AbnormalAnalyses: stats.AbnormalAnalyses,
			TotalSizeBytes:   stats.TotalSizeBytes,
			LabelCounts:      stats.LabelCounts,
			Labels:           keys,
		}, logger)
	}
}

// DeleteHistoryHandler deletes one analysis and its stored upload.
func DeleteHistoryHandler(buffer *storage.BufferService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id parameter is required", http.StatusBadRequest)
			return
		}

		if err := buffer.Remove(id); err != nil {
			logger.Error("Failed to delete analysis %s: %v", id, err)
			http.Error(w, "Failed to delete analysis", http.StatusInternalServerError)
			return
		}

		logger.Info("Analysis deleted: %s", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ClearHistoryHandler deletes every analysis and stored upload.
func ClearHistoryHandler(buffer *storage.BufferService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := buffer.Clear(); err != nil {
			logger.Error("Failed to clear history: %v", err)
			http.Error(w, "Failed to clear history", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" from the request (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}
