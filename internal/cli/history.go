package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nextgensh/mdh-export/internal/metrics"
	"github.com/nextgensh/mdh-export/internal/store"
)

var (
	historyLimit  int
	historyRun    string
	historyLedger string
)

var historyCmd = &cobra.Command{
	Use:   "history <output-folder>",
	Short: "Show past export runs",
	Long: `History lists the runs recorded in the ledger of an output folder, newest
first. With --run it lists the files written by a single run instead.

Examples:
  mdhexport history ./out
  mdhexport history ./out --limit 5
  mdhexport history ./out --run 2f1c9a04-...`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to show (0 for all)")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "show the exports of one run")
	historyCmd.Flags().StringVar(&historyLedger, "ledger", "", "run ledger path (default is <output-folder>/.mdhexport.db)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := historyLedger
	if path == "" {
		path = filepath.Join(args[0], store.DefaultFile)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("no run ledger found at %s", path)
	}

	s, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("opening run ledger: %w", err)
	}
	defer s.Close()

	if historyRun != "" {
		return printRun(s, historyRun)
	}

	runs, err := s.ListRuns(historyLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		pterm.Println("No runs recorded yet.")
		return nil
	}

	data := pterm.TableData{{"", "Run", "Started", "Exports", "Files", "Failed", "Rows"}}
	for _, r := range runs {
		t, err := metrics.NewCollector(s, r.ID).Totals()
		if err != nil {
			return err
		}
		data = append(data, []string{
			statusIcon(r.Status),
			truncate(r.ID, 11),
			r.StartedAt.Local().Format(time.DateTime),
			r.Exports,
			fmt.Sprintf("%d", t.Exports),
			fmt.Sprintf("%d", t.Failed),
			fmt.Sprintf("%d", t.Rows),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printRun(s *store.Store, id string) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}
	c := metrics.NewCollector(s, run.ID)

	summary, err := c.Summary()
	if err != nil {
		return err
	}
	title := pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprintf("Run %s", run.ID)
	pterm.DefaultBox.
		WithTitle(title).
		WithPadding(1).
		Println(fmt.Sprintf("%s %s\nOutput: %s\n%s", statusIcon(run.Status), run.Status, run.OutputRoot, summary))

	failures, err := c.Failures()
	if err != nil {
		return err
	}
	if len(failures) == 0 {
		return nil
	}

	data := pterm.TableData{{"Category", "Name", "Error"}}
	for _, e := range failures {
		data = append(data, []string{e.Category, truncate(e.Name, 48), truncate(e.Error, 80)})
	}
	pterm.Println()
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
