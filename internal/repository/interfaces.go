package repository

import (
	"lungdetect/internal/models"
)

// AnalysisRepository defines the interface for analysis data operations.
type AnalysisRepository interface {
	// Create operations
	Insert(a *models.Analysis) error
	InsertWithFindings(a *models.Analysis, findings []models.Finding) error

	// Read operations
	GetByID(id string) (*models.Analysis, error)
	GetByFilename(filename string) (*models.Analysis, error)
	GetAll(filter *models.AnalysisFilter) ([]models.Analysis, error)
	GetTotalCount(filter *models.AnalysisFilter) (int, error)
	GetStats() (*models.AnalysisStats, error)

	// Delete operations
	Delete(id string) error
	DeleteAll() error
}

// FindingRepository defines the interface for per-class finding operations.
type FindingRepository interface {
	// Create operations
	InsertBatch(findings []models.Finding) error

	// Read operations
	GetByAnalysisID(analysisID string) ([]models.Finding, error)
	GetPositiveKeysByAnalysisID(analysisID string) ([]string, error)
	GetAllPositiveKeys() ([]string, error)

	// Delete operations
	DeleteByAnalysisID(analysisID string) error
}
