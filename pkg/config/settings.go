package config

import (
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// Settings holds host-process configuration for the MCP server and hub.
// Unlike Config, which arrives as a JSON blob per sync run, Settings is
// read once at startup from an optional config file and the environment.
type Settings struct {
	// Log configuration
	Log LogSettings `mapstructure:"log"`

	// Hub configuration
	Hub HubSettings `mapstructure:"hub"`
}

// LogSettings holds logging configuration.
type LogSettings struct {
	Level string `mapstructure:"level"`
}

// HubSettings holds the WebSocket hub listener configuration.
type HubSettings struct {
	Port      int    `mapstructure:"port"`
	AuthToken string `mapstructure:"auth_token"`

	// MaxRPCPayload caps the accepted /rpc request body in bytes.
	MaxRPCPayload int64 `mapstructure:"max_rpc_payload"`

	// Timeouts in seconds for /rpc dispatch.
	DefaultTimeoutSec int `mapstructure:"default_timeout_sec"`
	MaxTimeoutSec     int `mapstructure:"max_timeout_sec"`
}

// LoadSettings reads settings from an optional config file and environment
// overrides.
func LoadSettings(configPath string) (*Settings, error) {
	v := viper.New()
	setSettingsDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}

	overrideSettingsWithEnv(&s)
	return &s, nil
}

func setSettingsDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("hub.port", 41484)
	v.SetDefault("hub.auth_token", "")
	v.SetDefault("hub.max_rpc_payload", 2*1024*1024)
	v.SetDefault("hub.default_timeout_sec", 20)
	v.SetDefault("hub.max_timeout_sec", 30)
}

func overrideSettingsWithEnv(s *Settings) {
	if level := os.Getenv("MEGAMEM_LOG_LEVEL"); level != "" {
		s.Log.Level = level
	}
	if port := os.Getenv("MEGAMEM_WS_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			s.Hub.Port = parsed
		}
	}
	if token := os.Getenv("MEGAMEM_WS_AUTH_TOKEN"); token != "" {
		s.Hub.AuthToken = token
	}
}
