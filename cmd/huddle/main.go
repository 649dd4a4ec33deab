package main

import (
	"os"

	cmd "github.com/huddlekit/huddle/cmd/huddle/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.VersionCmd,
		cmd.NewRegisterCmd(),
		cmd.NewLoginCmd(),
		cmd.NewLogoutCmd(),
		cmd.NewMeetingsCmd(),
		cmd.NewJoinCmd(),
	)

	// Do not print usage when a command fails.
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
