// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

// Package logging provides centralized zerolog-based structured logging
// for Switchboard.
//
// The package provides:
//   - Zero-allocation structured logging via zerolog
//   - JSON output for production, console output for development
//   - Correlation ID generation and context propagation
//   - An slog adapter so suture/sutureslog can log through zerolog
//
// # Quick Start
//
//	import "github.com/adunn/switchboard/internal/logging"
//
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logging.Info().Str("component", "realtime").Msg("connected")
//	logging.Error().Err(err).Msg("reconnect failed")
//
// Always terminate log chains with .Msg() or .Send(); a chain without a
// terminator is never emitted.
package logging
