package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage workflow definitions",
}

var workflowListStatus string

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		status := types.WorkflowStatus(workflowListStatus)
		if workflowListStatus != "" && !status.IsValid() {
			return fmt.Errorf("unknown workflow status %q", workflowListStatus)
		}

		workflows, err := a.workflows.List(cmd.Context(), status, nil)
		if err != nil {
			return err
		}
		if len(workflows) == 0 {
			cmd.Println("No workflows found.")
			return nil
		}

		cmd.Printf("%-36s  %-8s  %-8s  %-5s  %s\n", "ID", "STATUS", "VERSION", "STEPS", "NAME")
		for _, wf := range workflows {
			cmd.Printf("%-36s  %-8s  %-8d  %-5d  %s\n",
				wf.ID, colorStatus(string(wf.Status)), wf.Version, len(wf.Steps), wf.Name)
		}
		return nil
	},
}

var workflowShowCmd = &cobra.Command{
	Use:   "show <workflow-id>",
	Short: "Show one workflow with its steps",
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

		wf, err := a.workflows.GetByID(cmd.Context(), id)
		if err != nil {
			return err
		}

		cmd.Printf("Name:        %s\n", wf.Name)
		cmd.Printf("ID:          %s\n", wf.ID)
		cmd.Printf("Status:      %s\n", colorStatus(string(wf.Status)))
		cmd.Printf("Version:     %d\n", wf.Version)
		if wf.Description != "" {
			cmd.Printf("Description: %s\n", wf.Description)
		}
		if len(wf.Tags) > 0 {
			cmd.Printf("Tags:        %s\n", strings.Join(wf.Tags, ", "))
		}
		if len(wf.Variables) > 0 {
			vars, _ := json.Marshal(wf.Variables)
			cmd.Printf("Variables:   %s\n", vars)
		}

		cmd.Println("\nSteps:")
		for _, step := range wf.Steps {
			cmd.Printf("  %2d. [%s] %s\n", step.Order, step.Type, step.Name)
		}
		return nil
	},
}

var workflowCreateCmd = &cobra.Command{
	Use:   "create <definition.json>",
	Short: "Create a workflow from a JSON definition file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var wf types.Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			return fmt.Errorf("failed to parse workflow definition: %w", err)
		}
		if err := wf.Validate(); err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.workflows.Create(cmd.Context(), &wf); err != nil {
			return err
		}
		cmd.Printf("Created workflow %s (version %d)\n", wf.ID, wf.Version)
		return nil
	},
}

var workflowDeleteCmd = &cobra.Command{
	Use:   "delete <workflow-id>",
	Short: "Delete a workflow and its executions",
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

		if err := a.workflows.Delete(cmd.Context(), id); err != nil {
			return err
		}
		cmd.Printf("Deleted workflow %s\n", id)
		return nil
	},
}

var workflowVersionsCmd = &cobra.Command{
	Use:   "versions <workflow-id>",
	Short: "List archived versions of a workflow",
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

		versions, err := a.workflows.ListVersions(cmd.Context(), id)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			cmd.Println("No archived versions.")
			return nil
		}
		for _, v := range versions {
			cmd.Printf("v%-3d  %s  %s (%s)\n",
				v.Version, v.CreatedAt.Format("2006-01-02 15:04:05"), v.ChangeSummary, v.ChangedBy)
		}
		return nil
	},
}

func init() {
	workflowListCmd.Flags().StringVar(&workflowListStatus, "status", "", "Filter by status (draft|active|archived)")

	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowShowCmd)
	workflowCmd.AddCommand(workflowCreateCmd)
	workflowCmd.AddCommand(workflowDeleteCmd)
	workflowCmd.AddCommand(workflowVersionsCmd)
}
