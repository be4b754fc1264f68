package rolodex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-rolodex/pkg/config"
)

var syncCmd = &cobra.Command{
	Use:   "sync <connection-id>",
	Short: "Run one sync batch for a connection",
	Long: `Run one bounded sync batch for a connection and print the report.

The run verifies the provider credential, ingests items past the stored
cursor, and advances the cursor over the items that committed. Item-level
failures are reported but do not abort the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine, err := initializeEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer engine.Close(context.Background())

	report, err := engine.RunSync(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
