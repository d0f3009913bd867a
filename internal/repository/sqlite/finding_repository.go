package sqlite

import (
	"fmt"

	"lungdetect/internal/models"
	"lungdetect/internal/repository"
)

// Ensure FindingRepository implements the interface.
var _ repository.FindingRepository = (*FindingRepository)(nil)

// FindingRepository implements repository.FindingRepository for SQLite.
type FindingRepository struct {
	db *DB
}

// NewFindingRepository creates a new SQLite finding repository.
func NewFindingRepository(db *DB) *FindingRepository {
	return &FindingRepository{db: db}
}

// InsertBatch adds multiple findings in a single transaction.
func (r *FindingRepository) InsertBatch(findings []models.Finding) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO findings (analysis_id, label_key, label_index, probability, positive)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		if _, err := stmt.Exec(f.AnalysisID, f.LabelKey, f.LabelIndex, f.Probability, f.Positive); err != nil {
			return fmt.Errorf("failed to insert finding: %w", err)
		}
	}

	return tx.Commit()
}

// GetByAnalysisID retrieves all findings for an analysis, in label order.
func (r *FindingRepository) GetByAnalysisID(analysisID string) ([]models.Finding, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, analysis_id, label_key, label_index, probability, positive
		FROM findings WHERE analysis_id = ?
		ORDER BY label_index
	`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var findings []models.Finding
	for rows.Next() {
		var f models.Finding
		if err := rows.Scan(&f.ID, &f.AnalysisID, &f.LabelKey, &f.LabelIndex, &f.Probability, &f.Positive); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		findings = append(findings, f)
	}

	return findings, rows.Err()
}

// GetPositiveKeysByAnalysisID returns the keys of positive findings for an analysis.
func (r *FindingRepository) GetPositiveKeysByAnalysisID(analysisID string) ([]string, error) {
	return r.queryKeys(`
		SELECT label_key FROM findings
		WHERE analysis_id = ? AND positive = 1
		ORDER BY label_index
	`, analysisID)
}

// GetAllPositiveKeys returns every label that was ever reported positive.
func (r *FindingRepository) GetAllPositiveKeys() ([]string, error) {
	return r.queryKeys(`
		SELECT label_key FROM findings
		WHERE positive = 1
		GROUP BY label_key
		ORDER BY MIN(label_index)
	`)
}

func (r *FindingRepository) queryKeys(query string, args ...any) ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteByAnalysisID removes all findings for a specific analysis.
func (r *FindingRepository) DeleteByAnalysisID(analysisID string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM findings WHERE analysis_id = ?`, analysisID); err != nil {
		return fmt.Errorf("failed to delete findings: %w", err)
	}
	return nil
}
