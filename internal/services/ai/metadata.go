package ai

import (
	"encoding/json"
	"fmt"
	"os"

	"lungdetect/internal/labels"
)

// Metadata describes the tensors of an exported model.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	ImageSize   int      `json:"image_size"`
	Classes     []string `json:"classes,omitempty"`
}

// DefaultMetadata matches the Keras export: one grayscale 256x256 image
// in, 15 sigmoid units out.
func DefaultMetadata() Metadata {
	return Metadata{
		InputShape:  []int64{1, DefaultImageSize, DefaultImageSize, 1},
		OutputShape: []int64{1, labels.Count + 1},
		InputName:   "input",
		OutputName:  "output",
		ImageSize:   DefaultImageSize,
	}
}

// LoadMetadata reads a metadata file. A missing file yields the defaults;
// fields absent from the file keep their default values.
func LoadMetadata(path string) (Metadata, error) {
	meta := DefaultMetadata()
	if path == "" {
		return meta, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return meta, nil
	}
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata: %w", err)
	}

	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return meta, err
	}
	return meta, nil
}

// InputSize is the number of float32 values the model consumes.
func (m Metadata) InputSize() int {
	return shapeSize(m.InputShape)
}

// OutputSize is the number of float32 values the model produces.
func (m Metadata) OutputSize() int {
	return shapeSize(m.OutputShape)
}

// Validate checks the shapes against the preprocessing contract.
func (m Metadata) Validate() error {
	if m.ImageSize <= 0 {
		return fmt.Errorf("invalid image size %d", m.ImageSize)
	}
	want := []int64{1, int64(m.ImageSize), int64(m.ImageSize), 1}
	if len(m.InputShape) != len(want) {
		return fmt.Errorf("input shape %v does not match %v", m.InputShape, want)
	}
	for i := range want {
		if m.InputShape[i] != want[i] {
			return fmt.Errorf("input shape %v does not match %v", m.InputShape, want)
		}
	}
	if out := m.OutputSize(); out != labels.Count && out != labels.Count+1 {
		return fmt.Errorf("model must produce %d or %d outputs, shape %v gives %d",
			labels.Count, labels.Count+1, m.OutputShape, out)
	}
	if m.InputName == "" || m.OutputName == "" {
		return fmt.Errorf("input and output names are required")
	}
	return nil
}

func shapeSize(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
