// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

// Package realtime implements the persistent push-channel client: the
// websocket connection state machine with bounded exponential backoff, the
// tolerant event envelope parser, the typed event set, and the router that
// dispatches each event into exactly one domain store.
//
// Data flow: transport -> Manager -> ParseEnvelope -> DecodeEvent ->
// Router.Dispatch -> jobs.Store.ApplyUpdate, with any resulting effects
// returned for the caller to execute.
package realtime
