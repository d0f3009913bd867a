package dto

import (
	"encoding/json"
	"time"
)

// HistoryItem represents one stored analysis in the history view.
type HistoryItem struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Date         time.Time `json:"date"`
	TimeOfDay    time.Time `json:"timeOfDay"`
	Summary      string    `json:"summary"`
	Labels       []string  `json:"labels"`
}

// MarshalJSON customizes JSON output for HistoryItem to format date and time-of-day.
func (p HistoryItem) MarshalJSON() ([]byte, error) {
	type Alias HistoryItem
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      p.Date.Format("02-01-2006"),
		TimeOfDay: p.TimeOfDay.Format("15:04"),
		Alias:     (Alias)(p),
	})
}

// HistoryPage is a paginated response payload for the history view.
type HistoryPage struct {
	Items       []HistoryItem `json:"items"`
	Size        int64         `json:"size"`
	Length      int           `json:"length"`
	TotalPages  int           `json:"totalPages"`
	CurrentPage int           `json:"currentPage"`
	Limit       int           `json:"pageSize"`
}

// Event is pushed to websocket viewers.
type Event struct {
	Type     string          `json:"type"`
	Analysis *AnalysisResult `json:"analysis"`
	Filename string          `json:"filename,omitempty"`
	At       time.Time       `json:"at"`
}
