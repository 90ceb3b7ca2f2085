// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

// Package config provides layered configuration for the Switchboard sync core.
//
// Configuration is loaded with Koanf v2 in three layers, later layers taking
// precedence:
//
//  1. Defaults: built-in values for every setting
//  2. Config file: optional YAML file (switchboard.yaml)
//  3. Environment variables: SWITCHBOARD_*-style overrides
//
// The Config struct is immutable after Load and safe for concurrent reads.
package config
