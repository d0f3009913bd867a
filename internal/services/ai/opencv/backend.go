// Package opencv runs the classifier through the OpenCV DNN module.
package opencv

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"gocv.io/x/gocv"

	"lungdetect/internal/services/ai"
)

// Backend wraps a gocv network loaded from an ONNX file or a TensorFlow
// frozen graph.
type Backend struct {
	net        gocv.Net
	inputSizes []int
	inputName  string
	outputName string
	outputSize int
}

// New loads the network. configPath is only needed for frozen graphs
// and may be empty.
func New(modelPath, configPath string, meta ai.Metadata) (*Backend, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	sizes := make([]int, len(meta.InputShape))
	for i, d := range meta.InputShape {
		sizes[i] = int(d)
	}

	return &Backend{
		net:        net,
		inputSizes: sizes,
		inputName:  meta.InputName,
		outputName: meta.OutputName,
		outputSize: meta.OutputSize(),
	}, nil
}

// Run feeds input as a 4-D float blob and returns the output scores.
func (b *Backend) Run(input []float32) ([]float32, error) {
	blob, err := gocv.NewMatWithSizesFromBytes(b.inputSizes, gocv.MatTypeCV32F, float32Bytes(input))
	if err != nil {
		return nil, fmt.Errorf("failed to build input blob: %w", err)
	}
	defer blob.Close()

	b.net.SetInput(blob, b.inputName)

	output := b.net.Forward(b.outputName)
	defer output.Close()

	if output.Empty() {
		return nil, fmt.Errorf("network produced no output")
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}
	if len(data) != b.outputSize {
		return nil, fmt.Errorf("expected %d outputs, got %d", b.outputSize, len(data))
	}

	result := make([]float32, len(data))
	copy(result, data)
	return result, nil
}

// Close releases the network.
func (b *Backend) Close() error {
	return b.net.Close()
}

func float32Bytes(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}
