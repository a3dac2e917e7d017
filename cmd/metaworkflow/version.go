package main

import (
	"runtime"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags.
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("metaworkflow %s (%s) %s/%s\n",
			buildVersion, buildCommit, runtime.GOOS, runtime.GOARCH)
	},
}
