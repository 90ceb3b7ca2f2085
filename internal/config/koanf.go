// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"switchboard.yaml",
	"switchboard.yml",
	"/etc/switchboard/config.yaml",
	"/etc/switchboard/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "SWITCHBOARD_CONFIG_PATH"

// Load loads configuration using Koanf v2 with layered sources:
//
//  1. Defaults: built-in values
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: highest priority
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// Environment variable names map to koanf paths through an explicit
	// table: REALTIME_MAX_ATTEMPTS -> realtime.max_attempts.
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the first path found, or empty string if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unknown variables are dropped so unrelated environment noise never leaks
// into the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"environment": "environment",

		"realtime_enabled":            "realtime.enabled",
		"realtime_host":               "realtime.host",
		"realtime_path":               "realtime.path",
		"realtime_dev_port":           "realtime.dev_port",
		"realtime_tls":                "realtime.tls",
		"realtime_max_attempts":       "realtime.max_attempts",
		"realtime_initial_backoff":    "realtime.initial_backoff",
		"realtime_backoff_multiplier": "realtime.backoff_multiplier",
		"realtime_max_backoff":        "realtime.max_backoff",
		"realtime_handshake_timeout":  "realtime.handshake_timeout",

		"polling_short_interval":                 "polling.short_interval",
		"polling_medium_interval":                "polling.medium_interval",
		"polling_long_interval":                  "polling.long_interval",
		"polling_max_quiet":                      "polling.max_quiet",
		"polling_dependent_refresh_min_interval": "polling.dependent_refresh_min_interval",

		"api_base_url":            "api.base_url",
		"api_timeout":             "api.timeout",
		"api_retry_attempts":      "api.retry_attempts",
		"api_retry_initial_delay": "api.retry_initial_delay",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}
