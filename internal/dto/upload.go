package dto

import "time"

// Upload is a radiograph received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// BufferedAnalysis holds an upload and its result before flushing to disk.
type BufferedAnalysis struct {
	Upload    Upload
	Result    *AnalysisResult
	CreatedAt time.Time
}
