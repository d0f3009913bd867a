package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"lungdetect/internal/models"
	"lungdetect/internal/repository"
)

// Ensure AnalysisRepository implements the interface.
var _ repository.AnalysisRepository = (*AnalysisRepository)(nil)

// AnalysisRepository implements repository.AnalysisRepository for SQLite.
type AnalysisRepository struct {
	db *DB
}

// NewAnalysisRepository creates a new SQLite analysis repository.
func NewAnalysisRepository(db *DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

const analysisColumns = `a.id, a.filename, a.original_name, a.format, a.width, a.height, a.threshold, a.filesize, a.created_at`

func scanAnalysis(row interface{ Scan(...any) error }, a *models.Analysis) error {
	return row.Scan(&a.ID, &a.Filename, &a.OriginalName, &a.Format, &a.Width, &a.Height,
		&a.Threshold, &a.FileSize, &a.CreatedAt)
}

// Insert adds a new analysis record to the database.
func (r *AnalysisRepository) Insert(a *models.Analysis) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO analyses (id, filename, original_name, format, width, height, threshold, filesize, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Filename, a.OriginalName, a.Format, a.Width, a.Height, a.Threshold, a.FileSize, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

// InsertWithFindings stores an analysis and its per-class findings in one
// transaction. Nothing is stored when any insert fails.
func (r *AnalysisRepository) InsertWithFindings(a *models.Analysis, findings []models.Finding) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO analyses (id, filename, original_name, format, width, height, threshold, filesize, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Filename, a.OriginalName, a.Format, a.Width, a.Height, a.Threshold, a.FileSize, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO findings (analysis_id, label_key, label_index, probability, positive)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		if _, err := stmt.Exec(a.ID, f.LabelKey, f.LabelIndex, f.Probability, f.Positive); err != nil {
			return fmt.Errorf("failed to insert finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analysis: %w", err)
	}
	return nil
}

// GetByID retrieves an analysis by its ID. A missing row is (nil, nil).
func (r *AnalysisRepository) GetByID(id string) (*models.Analysis, error) {
	return r.getOne(`SELECT `+analysisColumns+` FROM analyses a WHERE a.id = ?`, id)
}

// GetByFilename retrieves an analysis by its stored filename.
func (r *AnalysisRepository) GetByFilename(filename string) (*models.Analysis, error) {
	return r.getOne(`SELECT `+analysisColumns+` FROM analyses a WHERE a.filename = ?`, filename)
}

func (r *AnalysisRepository) getOne(query string, arg any) (*models.Analysis, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var a models.Analysis
	err := scanAnalysis(r.db.Conn().QueryRow(query, arg), &a)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return &a, nil
}

// whereClause builds the filter part shared by GetAll and GetTotalCount.
func whereClause(filter *models.AnalysisFilter) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(" WHERE 1=1")
	args := []interface{}{}

	if filter == nil {
		return sb.String(), args
	}

	if filter.Label != "" {
		sb.WriteString(" AND EXISTS (SELECT 1 FROM findings f WHERE f.analysis_id = a.id AND f.label_key = ? AND f.positive = 1)")
		args = append(args, filter.Label)
	}

	switch filter.Status {
	case models.StatusAbnormal:
		sb.WriteString(" AND EXISTS (SELECT 1 FROM findings f WHERE f.analysis_id = a.id AND f.positive = 1)")
	case models.StatusClear:
		sb.WriteString(" AND NOT EXISTS (SELECT 1 FROM findings f WHERE f.analysis_id = a.id AND f.positive = 1)")
	}

	if !filter.StartDate.IsZero() {
		sb.WriteString(" AND DATE(a.created_at) >= DATE(?)")
		args = append(args, filter.StartDate.Format("2006-01-02"))
	}

	if !filter.EndDate.IsZero() {
		sb.WriteString(" AND DATE(a.created_at) <= DATE(?)")
		args = append(args, filter.EndDate.Format("2006-01-02"))
	}

	return sb.String(), args
}

// GetAll retrieves analyses based on filter criteria, newest first.
func (r *AnalysisRepository) GetAll(filter *models.AnalysisFilter) ([]models.Analysis, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)
	query := `SELECT ` + analysisColumns + ` FROM analyses a` + where + ` ORDER BY a.created_at DESC, a.id`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var analyses []models.Analysis
	for rows.Next() {
		var a models.Analysis
		if err := scanAnalysis(rows, &a); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, a)
	}

	return analyses, rows.Err()
}

// GetTotalCount returns the total count of analyses matching the filter.
func (r *AnalysisRepository) GetTotalCount(filter *models.AnalysisFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM analyses a`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return count, nil
}

// GetStats returns statistics about stored analyses.
func (r *AnalysisRepository) GetStats() (*models.AnalysisStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &models.AnalysisStats{
		LabelCounts: make(map[string]int),
	}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(*), COALESCE(SUM(filesize), 0) FROM analyses`).
		Scan(&stats.TotalAnalyses, &stats.TotalSizeBytes); err != nil {
		return nil, fmt.Errorf("failed to count analyses: %w", err)
	}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(DISTINCT analysis_id) FROM findings WHERE positive = 1`).
		Scan(&stats.AbnormalAnalyses); err != nil {
		return nil, fmt.Errorf("failed to count abnormal analyses: %w", err)
	}

	rows, err := r.db.Conn().Query(`
		SELECT label_key, COUNT(*)
		FROM findings
		WHERE positive = 1
		GROUP BY label_key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query label counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		stats.LabelCounts[key] = count
	}

	return stats, rows.Err()
}

// Delete removes an analysis and its findings.
func (r *AnalysisRepository) Delete(id string) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM findings WHERE analysis_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete findings: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM analyses WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	return tx.Commit()
}

// DeleteAll removes all analyses and their findings.
func (r *AnalysisRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM findings`); err != nil {
		return fmt.Errorf("failed to delete findings: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM analyses`); err != nil {
		return fmt.Errorf("failed to delete analyses: %w", err)
	}

	return nil
}
