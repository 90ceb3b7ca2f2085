// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

// Package session assembles one authenticated sync session: the store
// registry, the REST client, the push-channel manager, and the per-domain
// pollers, all supervised under one tree. Construction wires everything by
// injection; nothing in the module holds session state in package globals,
// so logout is Stop plus drop.
package session
