package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/po-intake/internal/config"
)

var (
	cfg     *config.Config
	noStore bool
)

var rootCmd = &cobra.Command{
	Use:   "po-intake",
	Short: "Purchase order document intake workflow",
	Long:  "Uploads purchase order documents for OCR extraction, normalizes the result into an editable draft, and registers reviewed records with the persistence service.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		if noStore {
			cfg.Store.Disabled = true
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noStore, "no-store", false, "disable run-history recording")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
