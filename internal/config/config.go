// Package config loads the bridge configuration from TOML with environment
// overrides. The webhook credentials are mandatory: the process refuses to
// serve without them.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":5000"
	DefaultGraphBaseURL  = "https://graph.facebook.com/v2.6"
	DefaultEscapeKeyword = "/operator"
	// The platform's built-in page inbox application, the default target
	// for pass_thread_control.
	DefaultInboxAppID = "263902037430900"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Messenger MessengerConfig `toml:"messenger"`
	Engine    EngineConfig    `toml:"engine"`
	Handover  HandoverConfig  `toml:"handover"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// BaseURL is the externally reachable URL of this process, the
	// prefix under which the platform reaches /webhook and /authorize.
	BaseURL string `toml:"base_url" validate:"required"`
}

type MessengerConfig struct {
	AppSecret       string `toml:"app_secret" validate:"required"`
	VerifyToken     string `toml:"verify_token" validate:"required"`
	PageAccessToken string `toml:"page_access_token" validate:"required"`
	GraphBaseURL    string `toml:"graph_base_url"`
}

type EngineConfig struct {
	BaseURL string `toml:"base_url" validate:"required"`
	Secret  string `toml:"secret"`
}

type HandoverConfig struct {
	EscapeKeyword string `toml:"escape_keyword"`
	InboxAppID    string `toml:"inbox_app_id"`
}

// Load reads the config file at path (DefaultConfigPath when empty), applies
// PAGEBRIDGE_* environment overrides, and validates the mandatory values.
// A missing credential is returned as an error so the caller can exit before
// the listener opens.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Messenger: MessengerConfig{
			GraphBaseURL: DefaultGraphBaseURL,
		},
		Handover: HandoverConfig{
			EscapeKeyword: DefaultEscapeKeyword,
			InboxAppID:    DefaultInboxAppID,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	applyEnvOverrides(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("incomplete config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"PAGEBRIDGE_APP_SECRET", &cfg.Messenger.AppSecret},
		{"PAGEBRIDGE_VERIFY_TOKEN", &cfg.Messenger.VerifyToken},
		{"PAGEBRIDGE_PAGE_ACCESS_TOKEN", &cfg.Messenger.PageAccessToken},
		{"PAGEBRIDGE_GRAPH_BASE_URL", &cfg.Messenger.GraphBaseURL},
		{"PAGEBRIDGE_ADDR", &cfg.Server.Addr},
		{"PAGEBRIDGE_BASE_URL", &cfg.Server.BaseURL},
		{"PAGEBRIDGE_ENGINE_BASE_URL", &cfg.Engine.BaseURL},
		{"PAGEBRIDGE_ENGINE_SECRET", &cfg.Engine.Secret},
		{"PAGEBRIDGE_ESCAPE_KEYWORD", &cfg.Handover.EscapeKeyword},
		{"PAGEBRIDGE_INBOX_APP_ID", &cfg.Handover.InboxAppID},
	}
	for _, o := range overrides {
		if value := strings.TrimSpace(os.Getenv(o.env)); value != "" {
			*o.dst = value
		}
	}
}
