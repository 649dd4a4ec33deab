package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/huddlekit/huddle/internal/version"
)

// VersionCmd prints the client version.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}
