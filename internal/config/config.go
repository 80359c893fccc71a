// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads and persists the pkgbridge configuration through
// viper, layering defaults, config files, environment variables and flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for all environment variables read by pkgbridge,
// e.g. PKGBRIDGE_REMOTE for the default remote selection.
const EnvPrefix = "pkgbridge"

// getConfigPath returns the full path for the configuration file.
func getConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		// System-wide configuration paths
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "pkgbridge")
		default: // Linux, macOS, etc.
			configDir = "/etc/pkgbridge"
		}
	} else {
		// User-specific configuration paths
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "pkgbridge")
	}

	return filepath.Join(configDir, "pkgbridge.yaml"), nil
}

// DataDir returns the per-user directory holding mutable state such as the
// default SQLite registry. The directory is created when missing.
func DataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not get user config directory: %w", err)
	}
	dir := filepath.Join(base, "pkgbridge")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not create data directory %s: %w", dir, err)
	}
	return dir, nil
}

// LoadConfig builds a fully layered configuration of type T for the given
// command: defaults, then config files, then environment, then flags.
// flagBindings maps config keys to flag names whose spelling differs from
// the key (e.g. "database.type" -> "db-type"); all other flags bind by name.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, additionalConfigFilePath *string, flagBindings map[string]string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("pkgbridge")
	v.SetConfigType("yaml")

	// An explicit --config path has the highest precedence for file-based
	// configuration.
	if additionalConfigFilePath != nil && *additionalConfigFilePath != "" {
		v.SetConfigFile(*additionalConfigFilePath)
	}

	if userConfigPath, err := getConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := getConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// It's okay if the file is not found, but other errors are fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return c, err
	}
	for key, flagName := range flagBindings {
		if f := cmd.Flags().Lookup(flagName); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return c, err
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, nil
}

// WriteConfigFile persists the given configuration to the user or system
// config location and returns the path it wrote.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := getConfigPath(system)
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	// 0600 because the file may reference private key locations.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", err
	}
	return path, nil
}
