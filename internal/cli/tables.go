package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextgensh/mdh-export/internal/export"
	"github.com/nextgensh/mdh-export/internal/warehouse"
)

var tablesCmd = &cobra.Command{
	Use:   "tables <config-file>",
	Short: "List the tables in the study schema",
	Long: `Tables prints the name of every table in the configured schema, one per
line. These are the tables written by --exports raw-csv and raw-parquet.

Examples:
  mdhexport tables ./config.ini`,
	Args: cobra.ExactArgs(1),
	RunE: runTables,
}

func runTables(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return err
	}

	sess, err := warehouse.Open(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	tables, err := export.New(sess, export.Options{Logger: logger}).Tables(ctx)
	if err != nil {
		return err
	}

	for _, t := range tables {
		fmt.Fprintln(cmd.OutOrStdout(), t)
	}
	logger.Debug("listed tables", "schema", cfg.Schema, "count", len(tables))
	return nil
}
