package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagUsername string

// NewRegisterCmd returns the command that creates an account and signs in.
func NewRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE:  runRegister,
	}
	cmd.Flags().StringVarP(&flagEmail, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&flagUsername, "username", "u", "", "display username")
	cmd.Flags().StringVarP(&flagPassword, "password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func runRegister(cmd *cobra.Command, args []string) error {
	client, credsPath, err := newAPIClient()
	if err != nil {
		return err
	}

	email, err := promptIfEmpty(flagEmail, "Email: ")
	if err != nil {
		return err
	}
	username, err := promptIfEmpty(flagUsername, "Username: ")
	if err != nil {
		return err
	}
	password, err := promptIfEmpty(flagPassword, "Password: ")
	if err != nil {
		return err
	}

	creds, err := client.Register(cmd.Context(), email, username, password)
	if err != nil {
		return err
	}

	fmt.Printf("Welcome %s, you are signed in (session cached in %s)\n", creds.Username, credsPath)
	return nil
}
