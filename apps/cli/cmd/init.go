package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/abdul-hamid-achik/apiregress/packages/core/config"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new apiregress project",
	Long: `Initialize a new apiregress project in the current directory.

This creates:
  - services_config.yaml  - Configuration file
  - test_cases.xlsx       - Example test-case workbook

Examples:
  apiregress init
  apiregress init --force`,
	Args: cobra.NoArgs,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

// sampleRows is the example workbook: a header row and three cases
var sampleRows = [][]any{
	{"ID", "TestCaseName", "Folder", "Method", "Path", "Headers", "Path_Params", "Query_Params", "Payload", "Expected_Status", "Assertions"},
	{"TC-001", "List users", "Users", "GET", "/users", "Accept: application/json", "", "page=1", "", 200, `{"data": {"notEmpty": true}}`},
	{"TC-002", "Create user", "Users", "POST", "/users", "Content-Type: application/json", "", "", `{"name": "Ada"}`, 201, `{"name": {"equals": "Ada"}}`},
	{"TC-003", "Unknown user", "Users", "GET", "/users/{id}", "", "id=999999", "", "", 404, ""},
}

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, "services_config.yaml")
	workbookFile := filepath.Join(cwd, "test_cases.xlsx")

	if !forceInit {
		for _, f := range []string{configFile, workbookFile} {
			if _, err := os.Stat(f); err == nil {
				return fmt.Errorf("file already exists: %s (use --force to overwrite)", f)
			}
		}
	}

	if err := sampleConfig().SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := writeSampleWorkbook(workbookFile); err != nil {
		return fmt.Errorf("failed to create example workbook: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", workbookFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\napiregress project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Edit gateway_base_url, then run 'apiregress run' to execute the example cases.\n")

	return nil
}

// sampleConfig is the starter configuration pointing at the example workbook
func sampleConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ExcelPath = "test_cases.xlsx"
	cfg.CollectionName = "API Tests"
	cfg.GatewayBaseURL = "http://localhost:3000"
	cfg.OutputDir = "out"
	cfg.Headers = map[string]string{"User-Agent": "apiregress/1.0"}
	return cfg
}

func writeSampleWorkbook(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Users"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	for i, row := range sampleRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
