package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "Inspect and control workflow executions",
}

var executionsListLimit int

var executionsListCmd = &cobra.Command{
	Use:   "list <workflow-id>",
	Short: "List executions of a workflow, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := types.ParseID(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		execs, err := a.executions.ListExecutions(cmd.Context(), id, executionsListLimit)
		if err != nil {
			return err
		}
		if len(execs) == 0 {
			cmd.Println("No executions found.")
			return nil
		}

		cmd.Printf("%-36s  %-16s  %-19s  %s\n", "ID", "STATUS", "STARTED", "DURATION")
		for _, exec := range execs {
			cmd.Printf("%-36s  %-16s  %-19s  %s\n",
				exec.ID, colorStatus(string(exec.Status)),
				exec.StartedAt.Format("2006-01-02 15:04:05"),
				exec.Duration().Round(1e6))
		}
		return nil
	},
}

var executionsShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show one execution in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := types.ParseID(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		exec, err := a.executions.GetExecution(cmd.Context(), id)
		if err != nil {
			return err
		}

		cmd.Printf("ID:        %s\n", exec.ID)
		cmd.Printf("Workflow:  %s\n", exec.WorkflowID)
		cmd.Printf("Status:    %s\n", colorStatus(string(exec.Status)))
		cmd.Printf("Started:   %s\n", exec.StartedAt.Format("2006-01-02 15:04:05"))
		if exec.CompletedAt != nil {
			cmd.Printf("Completed: %s\n", exec.CompletedAt.Format("2006-01-02 15:04:05"))
		}
		if exec.Error != "" {
			cmd.Printf("Error:     %s\n", exec.Error)
			if exec.ErrorStepID != nil {
				cmd.Printf("At step:   %s\n", *exec.ErrorStepID)
			}
		}
		if len(exec.FinalVariables) > 0 {
			vars, _ := json.MarshalIndent(exec.FinalVariables, "", "  ")
			cmd.Printf("Final variables:\n%s\n", vars)
		}
		return nil
	},
}

var executionsApproveCmd = &cobra.Command{
	Use:   "approve <execution-id>",
	Short: "Approve a suspended execution and resume it",
	Args:  cobra.ExactArgs(1),
	RunE:  executionAction(func(a *app, cmd *cobra.Command, id types.ID) error {
		exec, err := a.runner.Approve(cmd.Context(), id)
		if err != nil {
			return err
		}
		cmd.Printf("Execution %s resumed: %s\n", exec.ID, colorStatus(string(exec.Status)))
		return nil
	}),
}

var executionsRejectCmd = &cobra.Command{
	Use:   "reject <execution-id>",
	Short: "Reject a suspended execution",
	Args:  cobra.ExactArgs(1),
	RunE: executionAction(func(a *app, cmd *cobra.Command, id types.ID) error {
		exec, err := a.runner.Reject(cmd.Context(), id)
		if err != nil {
			return err
		}
		cmd.Printf("Execution %s rejected: %s\n", exec.ID, colorStatus(string(exec.Status)))
		return nil
	}),
}

var executionsRetryCmd = &cobra.Command{
	Use:   "retry <execution-id>",
	Short: "Re-run a finished execution with its last variable state",
	Args:  cobra.ExactArgs(1),
	RunE: executionAction(func(a *app, cmd *cobra.Command, id types.ID) error {
		exec, err := a.runner.Retry(cmd.Context(), id)
		if err != nil {
			return err
		}
		cmd.Printf("Retry execution %s finished: %s\n", exec.ID, colorStatus(string(exec.Status)))
		return nil
	}),
}

var executionsCancelCmd = &cobra.Command{
	Use:   "cancel <execution-id>",
	Short: "Cancel a running or suspended execution",
	Args:  cobra.ExactArgs(1),
	RunE: executionAction(func(a *app, cmd *cobra.Command, id types.ID) error {
		if err := a.runner.Cancel(cmd.Context(), id); err != nil {
			return err
		}
		cmd.Printf("Cancelled execution %s\n", id)
		return nil
	}),
}

var executionsLogsCmd = &cobra.Command{
	Use:   "logs <execution-id>",
	Short: "Show per-step logs of an execution",
	Args:  cobra.ExactArgs(1),
	RunE: executionAction(func(a *app, cmd *cobra.Command, id types.ID) error {
		lines, err := a.runner.ExecutionLogs(cmd.Context(), id)
		if err != nil {
			return err
		}
		for _, line := range lines {
			cmd.Println(line)
		}
		return nil
	}),
}

// executionAction wraps the shared parse-open-act shape of the
// execution subcommands.
func executionAction(fn func(a *app, cmd *cobra.Command, id types.ID) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := types.ParseID(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(a, cmd, id)
	}
}

func init() {
	executionsListCmd.Flags().IntVar(&executionsListLimit, "limit", 20, "Maximum executions to list (0 = all)")

	executionsCmd.AddCommand(executionsListCmd)
	executionsCmd.AddCommand(executionsShowCmd)
	executionsCmd.AddCommand(executionsApproveCmd)
	executionsCmd.AddCommand(executionsRejectCmd)
	executionsCmd.AddCommand(executionsRetryCmd)
	executionsCmd.AddCommand(executionsCancelCmd)
	executionsCmd.AddCommand(executionsLogsCmd)
}
