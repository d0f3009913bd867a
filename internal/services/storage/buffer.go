package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lungdetect/internal/dto"
	"lungdetect/internal/logger"
	"lungdetect/internal/models"
	"lungdetect/internal/repository"
)

// BufferService buffers finished analyses in memory and periodically
// flushes them to disk and the database.
type BufferService struct {
	imagesDir    string
	analyses     []dto.BufferedAnalysis
	bufferLimit  int
	mu           sync.Mutex
	logger       *logger.Logger
	analysisRepo repository.AnalysisRepository
}

// NewBufferService creates a new BufferService with the target directory and repository.
func NewBufferService(imagesDir string, bufferLimit int, logger *logger.Logger,
	analysisRepo repository.AnalysisRepository) *BufferService {
	return &BufferService{
		imagesDir:    imagesDir,
		bufferLimit:  bufferLimit,
		analyses:     make([]dto.BufferedAnalysis, 0, bufferLimit),
		logger:       logger,
		analysisRepo: analysisRepo,
	}
}

// ImagesDir is where stored uploads live.
func (s *BufferService) ImagesDir() string {
	return s.imagesDir
}

// Run flushes every interval until ctx is cancelled, then flushes once more.
func (s *BufferService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-ctx.Done():
			if _, err := s.Flush(); err != nil {
				s.logger.Error("Final flush incomplete: %v", err)
			}
			return
		}
	}
}

// Add buffers an analysis. A full buffer is flushed right away.
func (s *BufferService) Add(item dto.BufferedAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	s.analyses = append(s.analyses, item)
	s.logger.Info("Buffer size: %d/%d", len(s.analyses), s.bufferLimit)

	if len(s.analyses) >= s.bufferLimit {
		s.flushLocked()
	}
}

// Pending returns the number of buffered analyses.
func (s *BufferService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.analyses)
}

// Flush writes buffered analyses to disk and the database. It returns
// how many were saved and the failures of the rest, which are dropped.
func (s *BufferService) Flush() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *BufferService) flushLocked() (int, error) {
	if len(s.analyses) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(s.imagesDir, 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return 0, fmt.Errorf("create images directory: %w", err)
	}

	savedCount := 0
	var errs []error
	for _, item := range s.analyses {
		if err := s.save(item); err != nil {
			s.logger.Error("Error saving analysis %s: %v", item.Result.ID, err)
			errs = append(errs, fmt.Errorf("analysis %s: %w", item.Result.ID, err))
			continue
		}
		savedCount++
	}

	s.logger.Info("Flushed %d analyses to disk", savedCount)
	s.analyses = s.analyses[:0]
	return savedCount, errors.Join(errs...)
}

func (s *BufferService) save(item dto.BufferedAnalysis) error {
	filename := StoredFilename(item)
	fullpath := filepath.Join(s.imagesDir, filename)

	// O_EXCL keeps a colliding name from overwriting a stored upload
	file, err := os.OpenFile(fullpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", filename, err)
	}
	_, err = file.Write(item.Upload.Data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(fullpath)
		return fmt.Errorf("write %s: %w", filename, err)
	}

	record := &models.Analysis{
		ID:           item.Result.ID,
		Filename:     filename,
		OriginalName: filepath.Base(item.Upload.Filename),
		Threshold:    float64(item.Result.Threshold),
		FileSize:     int64(len(item.Upload.Data)),
		CreatedAt:    item.CreatedAt,
	}
	if img := item.Result.Image; img != nil {
		record.Format = img.Format
		record.Width = img.Width
		record.Height = img.Height
	}

	findings := make([]models.Finding, 0, len(item.Result.Findings))
	for _, f := range item.Result.Findings {
		findings = append(findings, models.Finding{
			AnalysisID:  item.Result.ID,
			LabelKey:    f.Key,
			LabelIndex:  f.Index,
			Probability: float64(f.Probability),
			Positive:    f.Positive,
		})
	}

	if err := s.analysisRepo.InsertWithFindings(record, findings); err != nil {
		os.Remove(fullpath)
		return err
	}
	return nil
}

// StoredFilename builds the on-disk name of an analysis upload:
// 2006-01-02_15-04-05_<id>.<ext>
func StoredFilename(item dto.BufferedAnalysis) string {
	ext := ".jpg"
	if item.Result.Image != nil && item.Result.Image.Format == "png" {
		ext = ".png"
	}
	return fmt.Sprintf("%s_%s%s", item.CreatedAt.Format("2006-01-02_15-04-05"), item.Result.ID, ext)
}

// Remove deletes the stored file and records of one analysis.
func (s *BufferService) Remove(id string) error {
	a, err := s.analysisRepo.GetByID(id)
	if err != nil {
		return err
	}
	if a == nil {
		return nil
	}

	if err := os.Remove(filepath.Join(s.imagesDir, a.Filename)); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete file %s: %v", a.Filename, err)
	}
	return s.analysisRepo.Delete(id)
}

// Clear drops pending analyses, every stored file and every record.
func (s *BufferService) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.analyses = s.analyses[:0]

	files, err := os.ReadDir(s.imagesDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unable to read images directory: %w", err)
	}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.imagesDir, file.Name())); err != nil {
			s.logger.Error("Error deleting file %s: %v", file.Name(), err)
		}
	}

	if err := s.analysisRepo.DeleteAll(); err != nil {
		return err
	}
	s.logger.Info("All analyses cleared from %s", s.imagesDir)
	return nil
}
