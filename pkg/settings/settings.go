package settings

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// UserSettings holds persistable user preferences
type UserSettings struct {
	DisplayName  string `mapstructure:"display_name"`
	SignalURL    string `mapstructure:"signal_url"`
	CaptureAudio bool   `mapstructure:"capture_audio"`
	MaxViewers   int    `mapstructure:"max_viewers"`
	FPS          int    `mapstructure:"fps"`
}

// DefaultSettings returns the default settings
func DefaultSettings() UserSettings {
	return UserSettings{
		SignalURL:    "ws://localhost:8080/ws",
		CaptureAudio: false,
		MaxViewers:   8,
		FPS:          15,
	}
}

// getConfigDir returns the config directory.
// Uses XDG_CONFIG_HOME if set, otherwise the OS user config dir.
func getConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatshare"), nil
	}
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "chatshare"), nil
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	defaults := DefaultSettings()
	v.SetDefault("display_name", defaults.DisplayName)
	v.SetDefault("signal_url", defaults.SignalURL)
	v.SetDefault("capture_audio", defaults.CaptureAudio)
	v.SetDefault("max_viewers", defaults.MaxViewers)
	v.SetDefault("fps", defaults.FPS)
	return v
}

// Load reads settings from the config file.
// Returns default settings if the file doesn't exist or is invalid.
func Load() (UserSettings, error) {
	dir, err := getConfigDir()
	if err != nil {
		return DefaultSettings(), err
	}

	v := newViper(dir)
	if err := v.ReadInConfig(); err != nil {
		// Missing or unreadable file means defaults, not failure.
		return DefaultSettings(), nil
	}

	var s UserSettings
	if err := v.Unmarshal(&s); err != nil {
		return DefaultSettings(), nil
	}
	return s, nil
}

// Save writes settings to the config file
func Save(s UserSettings) error {
	dir, err := getConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	v := newViper(dir)
	v.Set("display_name", s.DisplayName)
	v.Set("signal_url", s.SignalURL)
	v.Set("capture_audio", s.CaptureAudio)
	v.Set("max_viewers", s.MaxViewers)
	v.Set("fps", s.FPS)
	return v.WriteConfigAs(filepath.Join(dir, "config.yaml"))
}
