package ai

import (
	"errors"
	"fmt"
	"image"
	"time"

	"lungdetect/internal/labels"
	"lungdetect/internal/logger"
)

// UserWarning is the only failure text ever shown to a person using the page.
const UserWarning = "Please upload a valid radiograph."

var (
	ErrInvalidImage = errors.New("invalid radiograph")
	ErrInference    = errors.New("inference failed")
)

// Backend runs one forward pass of the model. Implementations are not
// required to be safe for concurrent use.
type Backend interface {
	Run(input []float32) ([]float32, error)
	Close() error
}

// Finding is the model's opinion on a single class.
type Finding struct {
	Label       labels.Label `json:"label"`
	Probability float32      `json:"probability"`
	Positive    bool         `json:"positive"`
}

// Prediction is the outcome of one analysis.
type Prediction struct {
	Findings  []Finding      `json:"findings"`
	Positives []labels.Label `json:"positives"`
	Threshold float32        `json:"threshold"`
	Elapsed   time.Duration  `json:"elapsed"`
}

// Summary renders the verdict line.
func (p *Prediction) Summary() string {
	return labels.Summary(p.Positives)
}

// DetectorService serwis klasyfikacji zdjęć RTG
type DetectorService struct {
	backend   Backend
	meta      Metadata
	threshold float32
	logger    *logger.Logger
}

// NewDetectorService wraps a loaded backend.
func NewDetectorService(backend Backend, meta Metadata, threshold float32, logger *logger.Logger) *DetectorService {
	return &DetectorService{
		backend:   backend,
		meta:      meta,
		threshold: threshold,
		logger:    logger,
	}
}

// Metadata returns the tensor description of the loaded model.
func (s *DetectorService) Metadata() Metadata {
	return s.meta
}

// Threshold returns the cutoff used for positive findings.
func (s *DetectorService) Threshold() float32 {
	return s.threshold
}

// Analyze preprocesses img and classifies it.
func (s *DetectorService) Analyze(img image.Image) (*Prediction, error) {
	tensor, err := Preprocess(img, s.meta.ImageSize)
	if err != nil {
		return nil, err
	}
	return s.AnalyzeTensor(tensor.Data)
}

// AnalyzeTensor classifies an already preprocessed input.
func (s *DetectorService) AnalyzeTensor(input []float32) (pred *Prediction, err error) {
	if len(input) != s.meta.InputSize() {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidImage, s.meta.InputSize(), len(input))
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Backend panic: %v", r)
			pred, err = nil, fmt.Errorf("%w: %v", ErrInference, r)
		}
	}()

	start := time.Now()
	output, err := s.backend.Run(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if len(output) != labels.Count && len(output) != labels.Count+1 {
		return nil, fmt.Errorf("%w: model returned %d values", ErrInference, len(output))
	}

	return s.buildPrediction(output, time.Since(start)), nil
}

func (s *DetectorService) buildPrediction(output []float32, elapsed time.Duration) *Prediction {
	flags := Threshold(output, s.threshold)
	findings := make([]Finding, 0, labels.Count)
	for i := 0; i < labels.Count; i++ {
		l, _ := labels.ByIndex(i)
		findings = append(findings, Finding{
			Label:       l,
			Probability: output[i],
			Positive:    flags[i],
		})
	}

	positives := Positives(output, s.threshold)
	if len(positives) > 0 {
		s.logger.Info("Detected %d abnormalities in %v", len(positives), elapsed)
	}

	return &Prediction{
		Findings:  findings,
		Positives: positives,
		Threshold: s.threshold,
		Elapsed:   elapsed,
	}
}

// Close releases the backend.
func (s *DetectorService) Close() error {
	return s.backend.Close()
}
