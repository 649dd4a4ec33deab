package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/huddlekit/huddle/internal/adapters/api"
)

// NewLogoutCmd returns the command that ends the cached session.
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear cached credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, credsPath, err := newAPIClient()
			if err != nil {
				return err
			}
			// Best effort on the backend side; the local cache always goes.
			if err := client.Logout(cmd.Context()); err != nil {
				logger.Warn().Err(err).Msg("backend logout failed")
			}
			if err := api.ClearCredentials(credsPath); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}
