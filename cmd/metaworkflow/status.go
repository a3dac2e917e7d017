package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the health of the backing services",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		checks := []struct {
			name  string
			check func(context.Context) types.HealthStatus
		}{
			{"database", a.db.Health},
			{"vector store", a.vectors.Health},
			{"knowledge index", a.knowledge.Health},
		}
		if a.provider != nil {
			checks = append(checks, struct {
				name  string
				check func(context.Context) types.HealthStatus
			}{"llm provider", a.provider.Health})
		}

		for _, c := range checks {
			status := c.check(cmd.Context())
			cmd.Printf("%-16s %s", c.name, colorStatus(string(status.State)))
			if status.Message != "" {
				cmd.Printf("  %s", status.Message)
			}
			cmd.Println()
		}
		return nil
	},
}
