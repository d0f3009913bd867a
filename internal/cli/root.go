package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"lungdetect/internal/app"
	"lungdetect/internal/config"
	"lungdetect/internal/logger"
	"lungdetect/internal/services/ai"
)

var (
	cfg    *config.Config
	cliLog *logger.Logger

	// newDetector loads a single detector; replaced in tests.
	newDetector = func(cfg *config.Config, log *logger.Logger) (*ai.DetectorService, error) {
		c := *cfg
		c.ProcessingWorkers = 1
		detectors, err := app.NewDetectorServices(&c, log)
		if err != nil {
			return nil, err
		}
		return detectors[0], nil
	}
)

var rootCmd = &cobra.Command{
	Use:   "cxrctl",
	Short: "Chest radiograph classifier tools",
	Long: `cxrctl runs the lung abnormality classifier offline and manages
the analysis history of the server. Settings come from the same
environment variables (and .env file) as the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg = config.Load()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cliLog = logger.NewWriterLogger(cmd.ErrOrStderr())
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
