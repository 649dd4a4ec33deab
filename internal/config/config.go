package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/huddlekit/huddle/internal/domain"
)

type Config struct {
	BackendURL  string `mapstructure:"backend_url"`
	SignalURL   string `mapstructure:"signal_url"` // optional override of the backend-advertised one
	ChatURL     string `mapstructure:"chat_url"`   // optional override, defaults to backend-relative
	DisplayName string `mapstructure:"display_name"`
	LogLevel    string `mapstructure:"log_level"`

	CredentialsFile string `mapstructure:"credentials_file"`

	TokenRenewBuffer   time.Duration `mapstructure:"token_renew_buffer"`
	ReconnectAttempts  int           `mapstructure:"reconnect_attempts"`
	ReconnectBaseDelay time.Duration `mapstructure:"reconnect_base_delay"`

	MaxPeers      int `mapstructure:"max_peers"`
	SoftPeerLimit int `mapstructure:"soft_peer_limit"`

	DisableAudio bool `mapstructure:"disable_audio"`
	DisableVideo bool `mapstructure:"disable_video"`

	// FallbackSTUN is used when the backend serves no ICE list.
	FallbackSTUN []string `mapstructure:"fallback_stun"`
}

var ErrBackendURLMissing = errors.New("backend_url is required")

// Load reads the config file (explicit path, else ~/.config/huddle/config.yaml),
// then lets HUDDLE_* environment variables override individual keys.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "huddle"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend_url", "")
	v.SetDefault("signal_url", "")
	v.SetDefault("chat_url", "")
	v.SetDefault("display_name", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("credentials_file", "")
	v.SetDefault("token_renew_buffer", "60s")
	v.SetDefault("reconnect_attempts", 5)
	v.SetDefault("reconnect_base_delay", "500ms")
	v.SetDefault("max_peers", 16)
	v.SetDefault("soft_peer_limit", 10)
	v.SetDefault("disable_audio", false)
	v.SetDefault("disable_video", false)
	v.SetDefault("fallback_stun", []string{"stun:stun.l.google.com:19302"})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// no file is fine, env and defaults carry it
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields every command needs. Commands with extra
// requirements (display name for join, etc.) check those themselves.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return ErrBackendURLMissing
	}
	return nil
}

// FallbackICE converts the configured STUN list into ICE server entries.
func (c *Config) FallbackICE() []domain.ICEServer {
	if len(c.FallbackSTUN) == 0 {
		return nil
	}
	return []domain.ICEServer{{URLs: c.FallbackSTUN}}
}

// CredentialsPath resolves where cached credentials live.
func (c *Config) CredentialsPath() (string, error) {
	if c.CredentialsFile != "" {
		return c.CredentialsFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve credentials path: %w", err)
	}
	return filepath.Join(home, ".config", "huddle", "credentials.json"), nil
}
