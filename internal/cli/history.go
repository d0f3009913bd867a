package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lungdetect/internal/dto"
	"lungdetect/internal/models"
	"lungdetect/internal/repository/sqlite"
	"lungdetect/internal/services/storage"
)

var (
	historyLimit  int
	historyLabel  string
	historyStatus string
	historyJSON   bool
	purgeForce    bool

	// stdinIsTerminal decides whether purge may ask for confirmation.
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or purge the analysis history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored analyses, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every stored analysis and upload",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPurge,
}

var historyImportCmd = &cobra.Command{
	Use:   "import DIR",
	Short: "Classify every radiograph in DIR and store the results in the history",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryImport,
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of analyses")
	historyListCmd.Flags().StringVar(&historyLabel, "label", "", "only analyses with this positive finding")
	historyListCmd.Flags().StringVar(&historyStatus, "status", "", "abnormal or clear")
	historyListCmd.Flags().BoolVar(&historyJSON, "json", false, "output analyses as JSON")
	historyPurgeCmd.Flags().BoolVar(&purgeForce, "force", false, "confirm the purge")

	historyCmd.AddCommand(historyListCmd, historyPurgeCmd, historyImportCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	if historyStatus != "" && historyStatus != models.StatusAbnormal && historyStatus != models.StatusClear {
		return fmt.Errorf("unknown status %q", historyStatus)
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	analyses := sqlite.NewAnalysisRepository(db)
	findings := sqlite.NewFindingRepository(db)

	rows, err := analyses.GetAll(&models.AnalysisFilter{
		Label:  historyLabel,
		Status: historyStatus,
		Limit:  historyLimit,
	})
	if err != nil {
		return err
	}

	if historyJSON {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal analyses: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(rows) == 0 {
		cmd.Println("No analyses found.")
		return nil
	}

	for _, a := range rows {
		keys, err := findings.GetPositiveKeysByAnalysisID(a.ID)
		if err != nil {
			return err
		}
		result := "clear"
		if len(keys) > 0 {
			result = strings.Join(keys, ", ")
		}
		cmd.Printf("%s  %s  %-24s %s\n", a.CreatedAt.Local().Format("2006-01-02 15:04"), a.ID, a.OriginalName, result)
	}
	return nil
}

func runHistoryPurge(cmd *cobra.Command, _ []string) error {
	if !purgeForce {
		if !stdinIsTerminal() {
			return errors.New("refusing to purge without --force")
		}
		cmd.Print("Delete every stored analysis and upload? [y/N] ")
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			cmd.Println("Aborted.")
			return nil
		}
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	analyses := sqlite.NewAnalysisRepository(db)
	count, err := analyses.GetTotalCount(nil)
	if err != nil {
		return err
	}

	buffer := storage.NewBufferService(cfg.ImageDirectory, cfg.BufferLimit, cliLog, analyses)
	if err := buffer.Clear(); err != nil {
		return err
	}

	cmd.Printf("Purged %d analyses.\n", count)
	return nil
}

func runHistoryImport(cmd *cobra.Command, args []string) error {
	files, err := os.ReadDir(args[0])
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	detector, err := newDetector(cfg, cliLog)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	defer detector.Close()

	// sized to hold every file so the single Flush below reports all saves
	buffer := storage.NewBufferService(cfg.ImageDirectory, len(files)+1, cliLog, sqlite.NewAnalysisRepository(db))

	queued, skipped := 0, 0
	for _, file := range files {
		ext := strings.ToLower(filepath.Ext(file.Name()))
		if file.IsDir() || (ext != ".png" && ext != ".jpg" && ext != ".jpeg") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(args[0], file.Name()))
		if err != nil {
			cliLog.Warning("Skipping %s: %v", file.Name(), err)
			skipped++
			continue
		}

		res, err := classifyData(detector, data, file.Name())
		if err != nil {
			cliLog.Warning("Skipping %s: %v", file.Name(), err)
			skipped++
			continue
		}

		createdAt := time.Now()
		if info, err := file.Info(); err == nil {
			createdAt = info.ModTime()
		}
		buffer.Add(dto.BufferedAnalysis{
			Upload:    dto.Upload{Filename: file.Name(), Data: data},
			Result:    res,
			CreatedAt: createdAt,
		})
		queued++
	}

	imported, err := buffer.Flush()
	cmd.Printf("Imported %d analyses, skipped %d.\n", imported, skipped)
	if err != nil {
		return fmt.Errorf("%d of %d analyses could not be stored: %w", queued-imported, queued, err)
	}
	return nil
}
