package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kimjoonhwaan/metaworkflow/internal/config"
)

// Global flags shared by every subcommand.
var (
	flagConfigFile string
	flagHomeDir    string
)

var rootCmd = &cobra.Command{
	Use:   "metaworkflow",
	Short: "Metaworkflow - natural-language workflow orchestration core",
	Long: `Metaworkflow stores, runs, and inspects step-based workflows
authored from natural language. Workflows are sequences of typed steps
(api_call, llm_call, python_script, condition, approval, notification,
data_transform) executed over a shared variable pool with checkpointed,
resumable state.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with SIGINT/SIGTERM cancellation.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// resolveConfigPath applies the flag/env/default precedence for the
// config file location.
func resolveConfigPath() string {
	if flagConfigFile != "" {
		return flagConfigFile
	}
	home := flagHomeDir
	if home == "" {
		home = os.Getenv("METAWORKFLOW_HOME")
	}
	if home == "" {
		home = config.DefaultHomeDir()
	}
	return config.DefaultConfigPath(home)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagHomeDir, "home", "", "Application home directory (default ~/.metaworkflow)")

	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(executionsCmd)
	rootCmd.AddCommand(knowledgeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
