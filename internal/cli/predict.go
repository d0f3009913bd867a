package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"lungdetect/internal/dto"
	"lungdetect/internal/services/ai"
)

var (
	predictThreshold float64
	predictJSON      bool
)

var predictCmd = &cobra.Command{
	Use:   "predict FILE...",
	Short: "Classify radiographs offline",
	Long: `Loads the model once and classifies every given JPEG or PNG file.
Files that cannot be read or decoded are reported and skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().Float64VarP(&predictThreshold, "threshold", "t", 0, "override the cutoff (0 uses THRESHOLD)")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	if predictThreshold != 0 {
		if predictThreshold <= 0 || predictThreshold >= 1 {
			return fmt.Errorf("threshold must be between 0 and 1, got %v", predictThreshold)
		}
		cfg.Threshold = predictThreshold
	}

	detector, err := newDetector(cfg, cliLog)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	defer detector.Close()

	failed := 0
	results := make([]*dto.AnalysisResult, 0, len(args))
	for _, path := range args {
		res, err := classifyFile(detector, path)
		if err != nil {
			cliLog.Warning("%s: %v", path, err)
			cmd.Printf("%s: %s\n", path, ai.UserWarning)
			failed++
			continue
		}
		results = append(results, res)

		if !predictJSON {
			cmd.Printf("%s: %s\n", path, res.Summary)
			for _, line := range res.Lines {
				cmd.Printf("  %s\n", line)
			}
		}
	}

	if predictJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) could not be classified", failed, len(args))
	}
	return nil
}

func classifyFile(detector *ai.DetectorService, path string) (*dto.AnalysisResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return classifyData(detector, data, filepath.Base(path))
}

func classifyData(detector *ai.DetectorService, data []byte, name string) (*dto.AnalysisResult, error) {
	img, format, err := ai.DecodeImageBytes(data)
	if err != nil {
		return nil, err
	}

	pred, err := detector.Analyze(img)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	res := dto.NewAnalysisResult(uuid.NewString(), pred, &dto.ImageDetails{
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	})
	cliLog.Info("%s classified in %dms", name, res.ElapsedMS)
	return res, nil
}
