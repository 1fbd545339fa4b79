package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/normalize"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the normalized test cases",
	Long: `List every test case the configured input normalizes to, with the
correlation id it is tracked under.

Examples:
  apiregress list
  apiregress list --openapi api.yaml`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         listCommand,
}

// endpointOf returns the path shown for a case
func endpointOf(tc *model.TestCase) string {
	switch {
	case tc.Endpoint != nil && tc.Endpoint.PathTemplate != "":
		return tc.Endpoint.PathTemplate
	case tc.Path != "":
		return tc.Path
	default:
		return tc.URL
	}
}

func listCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	norm, err := normalize.New(normalize.WithLogger(log)).Load(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Case", "Name", "Folder", "Method", "Endpoint", "Expected"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Name", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Endpoint", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Expected", Align: text.AlignRight},
	})
	for i := range norm.Cases {
		tc := &norm.Cases[i]
		t.AppendRow(table.Row{tc.ID, tc.DisplayName(), tc.Folder, tc.Method, endpointOf(tc), tc.ExpectedStatus})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d cases", len(norm.Cases))})
	t.Render()

	for _, skipped := range norm.Skipped {
		fmt.Fprintf(cmd.OutOrStderr(), "Skipped: %v\n", skipped)
	}
	return nil
}
