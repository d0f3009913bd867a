package models

import "time"

// Analysis represents one stored radiograph and its verdict.
type Analysis struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Format       string    `json:"format"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Threshold    float64   `json:"threshold"`
	FileSize     int64     `json:"filesize"`
	CreatedAt    time.Time `json:"created_at"`
}

// Analysis status filter values.
const (
	StatusAbnormal = "abnormal"
	StatusClear    = "clear"
)

// AnalysisFilter contains filtering options for querying analyses.
type AnalysisFilter struct {
	Label     string // only analyses with this label positive
	Status    string // StatusAbnormal, StatusClear or empty
	StartDate time.Time
	EndDate   time.Time
	Limit     int
	Offset    int
}

// AnalysisStats contains statistics about stored analyses.
type AnalysisStats struct {
	TotalAnalyses    int            `json:"total_analyses"`
	AbnormalAnalyses int            `json:"abnormal_analyses"`
	TotalSizeBytes   int64          `json:"total_size_bytes"`
	LabelCounts      map[string]int `json:"label_counts"`
}
