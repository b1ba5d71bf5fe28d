package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd runs the service when no subcommand is given
var RootCmd = &cobra.Command{
	Use:   "check-export",
	Short: "Flatten Check team exports into analyst-ready tables",
	Long: `check-export pulls a team's projects and media items from the Check API
and turns them into one row per media item, with tags, comments, task answers
and status timings as columns.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(ExportCmd)
}

// Execute runs the command line
func Execute() error {
	return RootCmd.Execute()
}
