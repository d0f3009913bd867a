package models

// Finding is the stored probability of one class for an analysis.
type Finding struct {
	ID          int64   `json:"id"`
	AnalysisID  string  `json:"analysis_id"`
	LabelKey    string  `json:"label_key"`
	LabelIndex  int     `json:"label_index"`
	Probability float64 `json:"probability"`
	Positive    bool    `json:"positive"`
}
