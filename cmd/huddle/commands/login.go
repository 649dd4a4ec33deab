package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	flagEmail    string
	flagPassword string
)

// NewLoginCmd returns the command that signs in and caches the session.
func NewLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and cache the session locally",
		RunE:  runLogin,
	}
	cmd.Flags().StringVarP(&flagEmail, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&flagPassword, "password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	client, credsPath, err := newAPIClient()
	if err != nil {
		return err
	}

	email, err := promptIfEmpty(flagEmail, "Email: ")
	if err != nil {
		return err
	}
	password, err := promptIfEmpty(flagPassword, "Password: ")
	if err != nil {
		return err
	}

	creds, err := client.Login(cmd.Context(), email, password)
	if err != nil {
		return err
	}

	fmt.Printf("Logged in as %s (session cached in %s)\n", creds.Username, credsPath)
	return nil
}

func promptIfEmpty(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("empty input")
	}
	return line, nil
}
