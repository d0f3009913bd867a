package dto

import (
	"lungdetect/internal/labels"
	"lungdetect/internal/services/ai"
)

// FindingResult is one class of an analysis as returned by the API.
type FindingResult struct {
	Index       int     `json:"index"`
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Probability float32 `json:"probability"`
	Positive    bool    `json:"positive"`
}

// ImageDetails describes the uploaded radiograph.
type ImageDetails struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// AnalysisResult is the outcome of one upload.
type AnalysisResult struct {
	ID        string          `json:"id"`
	Summary   string          `json:"summary"`
	Lines     []string        `json:"lines"`
	Findings  []FindingResult `json:"findings"`
	Threshold float32         `json:"threshold"`
	ElapsedMS int64           `json:"elapsedMs"`
	Image     *ImageDetails   `json:"image,omitempty"`
}

// Abnormal reports whether at least one class was positive.
func (r *AnalysisResult) Abnormal() bool {
	for _, f := range r.Findings {
		if f.Positive {
			return true
		}
	}
	return false
}

// NewAnalysisResult converts a prediction to its API form.
func NewAnalysisResult(id string, pred *ai.Prediction, image *ImageDetails) *AnalysisResult {
	findings := make([]FindingResult, 0, len(pred.Findings))
	for _, f := range pred.Findings {
		findings = append(findings, FindingResult{
			Index:       f.Label.Index,
			Key:         f.Label.Key,
			Name:        f.Label.Name,
			Probability: f.Probability,
			Positive:    f.Positive,
		})
	}

	lines := make([]string, 0, len(pred.Positives))
	for _, l := range pred.Positives {
		lines = append(lines, labels.Line(l))
	}
	if len(lines) == 0 {
		lines = append(lines, labels.NoneDetected)
	}

	return &AnalysisResult{
		ID:        id,
		Summary:   pred.Summary(),
		Lines:     lines,
		Findings:  findings,
		Threshold: pred.Threshold,
		ElapsedMS: pred.Elapsed.Milliseconds(),
		Image:     image,
	}
}

// ErrorResponse is the JSON body of a failed API call. Warning is the
// text meant for people.
type ErrorResponse struct {
	Error   string `json:"error"`
	Warning string `json:"warning,omitempty"`
}
