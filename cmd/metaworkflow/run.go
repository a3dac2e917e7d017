package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

var (
	runVars      []string
	runInputFile string
)

var runCmd = &cobra.Command{
	Use:   "run <workflow-id>",
	Short: "Execute a workflow and wait for it to finish",
	Long: `Execute a workflow synchronously. Input variables come from an
optional JSON file (--input) and repeated --var key=value flags; flags
win over the file, and both win over the workflow's declared defaults.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := types.ParseID(args[0])
		if err != nil {
			return err
		}
		input, err := collectInput(runInputFile, runVars)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		exec, err := a.runner.Execute(cmd.Context(), id, input)
		if err != nil && exec == nil {
			return err
		}

		cmd.Printf("Execution %s finished: %s (%s)\n",
			exec.ID, colorStatus(string(exec.Status)), exec.Duration().Round(1e6))
		if exec.Error != "" {
			cmd.Printf("Error: %s\n", exec.Error)
		}
		if exec.Status == types.ExecutionStatusWaitingApproval {
			cmd.Printf("Waiting for approval. Resume with: metaworkflow executions approve %s\n", exec.ID)
		}
		if len(exec.FinalVariables) > 0 {
			vars, _ := json.MarshalIndent(exec.FinalVariables, "", "  ")
			cmd.Printf("Final variables:\n%s\n", vars)
		}
		return nil
	},
}

// collectInput merges a JSON input file with --var overrides. Values
// that parse as JSON keep their type; everything else stays a string.
func collectInput(inputFile string, vars []string) (map[string]any, error) {
	input := map[string]any{}
	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &input); err != nil {
			return nil, fmt.Errorf("failed to parse input file: %w", err)
		}
	}
	for _, pair := range vars {
		key, raw, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		input[key] = value
	}
	return input, nil
}

func init() {
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Input variable as key=value (repeatable)")
	runCmd.Flags().StringVar(&runInputFile, "input", "", "JSON file with input variables")
}
