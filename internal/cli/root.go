// Package cli provides the command-line interface for mdhexport.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextgensh/mdh-export/internal/export"
)

var (
	verbose bool
	logger  *slog.Logger

	exportList string
	ledgerPath string
	noLedger   bool
)

// rootCmd exports a study when given a config file and an output folder.
var rootCmd = &cobra.Command{
	Use:   "mdhexport <config-file> <output-folder>",
	Short: "Export MyDataHelps study data from Athena",
	Long: `mdhexport queries a MyDataHelps study schema in Amazon Athena and writes
the results as files under an output folder:

  RawCSv/           one CSV per table        (--exports raw-csv)
  RawParquet/       one Parquet per table    (--exports raw-parquet)
  SurveyProcessed/  one CSV per survey       (--exports surveys)
  FitbitSummary/    Fitbit summary reports   (--exports fitbit)

The config file is an INI file with a [default] section holding the AWS
credentials, the S3 staging directory, region, schema and workgroup.

Examples:
  mdhexport ./config.ini ./out
  mdhexport ./config.ini ./out --exports fitbit,surveys
  mdhexport ./config.ini ./out --exports all --no-ledger`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if verbose {
			logLevel = slog.LevelDebug
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
	},
	RunE: runExport,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.Flags().StringVarP(&exportList, "exports", "e", export.DefaultSelection,
		"exports to run (raw-csv, raw-parquet, surveys, fitbit, all)")
	rootCmd.Flags().StringVar(&ledgerPath, "ledger", "", "run ledger path (default is <output-folder>/.mdhexport.db)")
	rootCmd.Flags().BoolVar(&noLedger, "no-ledger", false, "do not record the run in the ledger")

	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
