package main

import (
	"github.com/fatih/color"
)

// colorStatus renders a workflow/execution/health status with the
// conventional terminal coloring.
func colorStatus(status string) string {
	switch status {
	case "success", "active", "healthy":
		return color.GreenString(status)
	case "failed", "unhealthy":
		return color.RedString(status)
	case "running", "waiting_approval", "degraded", "draft":
		return color.YellowString(status)
	case "cancelled", "archived":
		return color.New(color.Faint).Sprint(status)
	default:
		return status
	}
}
