// Package onnx runs the classifier through ONNX Runtime.
package onnx

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"lungdetect/internal/services/ai"
)

var (
	envMu   sync.Mutex
	envRefs int
)

// acquireEnvironment initializes the process-wide ONNX Runtime
// environment on first use.
func acquireEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()

	envRefs--
	if envRefs == 0 {
		ort.DestroyEnvironment()
	}
}

// Backend owns one ONNX Runtime session and its bound tensors.
type Backend struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	acquired     bool
}

// New loads modelPath. libraryPath points at the onnxruntime shared
// library and may be empty to use the platform default.
func New(modelPath, libraryPath string, meta ai.Metadata) (*Backend, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if err := acquireEnvironment(libraryPath); err != nil {
		return nil, err
	}

	b := &Backend{acquired: true}
	if err := b.init(modelPath, meta); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) init(modelPath string, meta ai.Metadata) error {
	var err error

	b.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}

	b.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	b.session, err = ort.NewAdvancedSession(modelPath,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{b.inputTensor}, []ort.ArbitraryTensor{b.outputTensor},
		nil)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return nil
}

// Run copies input into the bound tensor, runs the session and returns a
// copy of the output.
func (b *Backend) Run(input []float32) ([]float32, error) {
	in := b.inputTensor.GetData()
	if len(input) != len(in) {
		return nil, fmt.Errorf("expected %d input values, got %d", len(in), len(input))
	}
	copy(in, input)

	if err := b.session.Run(); err != nil {
		return nil, fmt.Errorf("session run: %w", err)
	}

	out := b.outputTensor.GetData()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

// Close destroys the session and tensors. Safe to call more than once.
func (b *Backend) Close() error {
	if !b.acquired {
		return nil
	}
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	if b.inputTensor != nil {
		b.inputTensor.Destroy()
		b.inputTensor = nil
	}
	if b.outputTensor != nil {
		b.outputTensor.Destroy()
		b.outputTensor = nil
	}
	b.acquired = false
	releaseEnvironment()
	return nil
}
