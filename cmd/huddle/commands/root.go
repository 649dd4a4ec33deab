// Package commands holds the huddle CLI command tree.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/huddlekit/huddle/internal/adapters/api"
	"github.com/huddlekit/huddle/internal/config"
	"github.com/huddlekit/huddle/internal/core"
)

var (
	flagConfig   string
	flagBackend  string
	flagLogLevel string

	cfg    *config.Config
	logger zerolog.Logger
)

// RootCmd is the base command; subcommands are attached in main.
var RootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "Terminal client for huddle meetings: chat and mesh audio/video over WebRTC",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.config/huddle/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "backend base URL, overrides the config file")
	RootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "trace, debug, info, warn or error")
}

// setup loads config and builds the logger every command shares. Backend
// presence is checked later, by the commands that actually talk to it.
func setup() error {
	loaded, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagBackend != "" {
		loaded.BackendURL = flagBackend
	}
	if flagLogLevel != "" {
		loaded.LogLevel = flagLogLevel
	}
	cfg = loaded

	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		level, err = zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
		if err != nil {
			return fmt.Errorf("bad log level %q: %w", cfg.LogLevel, err)
		}
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)

	return nil
}

// newAPIClient builds the backend client, seeded from the credential cache.
// Every credential change the client makes is written back to the cache.
func newAPIClient() (*api.Client, string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	credsPath, err := cfg.CredentialsPath()
	if err != nil {
		return nil, "", err
	}

	client, err := api.New(api.Options{
		BaseURL: cfg.BackendURL,
		Logger:  logger,
		OnCredentials: func(creds api.Credentials) {
			if err := api.SaveCredentials(credsPath, creds); err != nil {
				logger.Warn().Err(err).Msg("credential cache not updated")
			}
		},
	})
	if err != nil {
		return nil, "", err
	}

	creds, err := api.LoadCredentials(credsPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", credsPath).Msg("credential cache unreadable, continuing logged out")
	}
	if creds.LoggedIn() {
		client.SetCredentials(creds)
	}
	return client, credsPath, nil
}

func requireLogin(client *api.Client) (api.Credentials, error) {
	creds := client.Credentials()
	if !creds.LoggedIn() {
		return api.Credentials{}, fmt.Errorf("%w: not logged in, run \"huddle login\" first", core.ErrAuth)
	}
	return creds, nil
}
