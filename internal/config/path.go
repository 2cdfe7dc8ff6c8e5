package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const appDir = "murmur"

// ResolvePath applies CLI/XDG/home fallback rules for the config file location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, appDir, "config.jsonc"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}

	return filepath.Join(home, ".config", appDir, "config.jsonc"), nil
}

// DataDir is where uploads and the quota database live by default.
func DataDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, appDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for data directory")
	}
	return filepath.Join(home, ".local", "share", appDir), nil
}

// withDataPaths fills storage paths left unset by the config file.
func withDataPaths(cfg *Config) error {
	if cfg.Storage.UploadDir != "" && cfg.Quota.SQLitePath != "" && cfg.Debug.Dir != "" {
		return nil
	}
	dir, err := DataDir()
	if err != nil {
		return err
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	}
	if cfg.Quota.SQLitePath == "" {
		cfg.Quota.SQLitePath = filepath.Join(dir, "quota.db")
	}
	if cfg.Debug.Dir == "" {
		cfg.Debug.Dir = filepath.Join(dir, "debug")
	}
	return nil
}
