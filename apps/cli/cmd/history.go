package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apiregress/packages/core/config"
	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/history"
)

var (
	historyDBFlag    string
	historyLimitFlag int
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded runs",
	Long: `Show the runs recorded in the history database (history.path). With a
run id, show the per-case results of that run.

Examples:
  apiregress history
  apiregress history --limit 5
  apiregress history 0b6f7c1e-9a1d-4c57-9f0e-3c2d8a4b5e61`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         historyCommand,
}

func init() {
	historyCmd.Flags().StringVar(&historyDBFlag, "db", getEnvString("APIREGRESS_HISTORY", ""), "History database, overrides history.path (env: APIREGRESS_HISTORY)")
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Number of runs to show")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	path := historyDBFlag
	if path == "" {
		cfg, err := config.LoadConfig(configFlag)
		if err != nil {
			return &model.ConfigError{Field: "config", Reason: err.Error()}
		}
		if cfg.History != nil {
			path = cfg.History.Path
		}
	}
	if path == "" {
		return &model.ConfigError{Field: "history.path", Reason: "no history database configured"}
	}
	if noColorFlag {
		color.NoColor = true
	}

	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		return showRun(cmd, store, args[0])
	}

	runs, err := store.Runs(cmd.Context(), historyLimitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Started", "Collection", "Total", "Passed", "Failed", "Errors", "No Result", "Duration", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Collection", WidthMax: 30, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, r := range runs {
		status := green("ok")
		switch {
		case r.Fatal != "":
			status = red("aborted: " + r.Fatal)
		case !r.Succeeded:
			status = red("not passed")
		}
		t.AppendRow(table.Row{
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Collection,
			r.Total, r.Passed, r.Failed, r.Errored, r.NoResult, r.Duration, status,
		})
	}
	t.Render()
	return nil
}

func showRun(cmd *cobra.Command, store *history.Store, runID string) error {
	cases, err := store.Cases(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return fmt.Errorf("no case results recorded for run %s", runID)
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Case", "Name", "Result", "Actual", "Detail"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Detail", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, c := range cases {
		actual := "-"
		if c.ActualStatus > 0 {
			actual = fmt.Sprint(c.ActualStatus)
		}
		t.AppendRow(table.Row{c.CaseID, c.Label, c.Classification, actual, c.Detail})
	}
	t.Render()
	return nil
}
