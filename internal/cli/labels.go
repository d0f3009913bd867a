package cli

import (
	"github.com/spf13/cobra"

	"lungdetect/internal/labels"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List the abnormality classes in model output order",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		for _, l := range labels.All() {
			cmd.Printf("%2d  %-20s %s\n", l.Index, l.Key, l.Name)
		}
	},
}

func init() {
	rootCmd.AddCommand(labelsCmd)
}
