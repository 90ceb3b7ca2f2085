// Switchboard - Realtime Sync Core for IPTV/DVR Libraries
// Copyright 2026 A. Dunn (adunn)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adunn/switchboard

package realtime

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// FramingTypeConnectionEstablished is the one message handled on the outer
// type: the backend's connection ack. It carries no reconciliation payload
// and mutates no state.
const FramingTypeConnectionEstablished = "connection_established"

// Envelope is one decoded inbound push message. The routing discriminator
// is the nested data.type field, not the outer message type.
type Envelope struct {
	// EventType is the discriminator read from data.type
	// (e.g. "media_scan", "m3u_refresh", "comskip_status").
	EventType string

	// Payload is the raw data object, decoded per event type by DecodeEvent.
	Payload json.RawMessage

	// Framing is true for connection_established; such envelopes are
	// acknowledged and otherwise ignored.
	Framing bool
}

// Envelope parse errors. Callers log and drop; a malformed message never
// mutates a store and never crashes the router.
var (
	ErrEmptyMessage     = errors.New("empty message")
	ErrNoDiscriminator  = errors.New("message has no event type discriminator")
	ErrMalformedPayload = errors.New("malformed message payload")
)

// wireMessage is the outer frame: { "type": ..., "data": { "type": ..., ... } }.
type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// wireData picks only the discriminator out of the data object.
type wireData struct {
	Type string `json:"type"`
}

// ParseEnvelope decodes a raw push message into an Envelope.
//
// Tolerant by contract: truncated, non-JSON, or discriminator-less input
// returns an error and no envelope, never a panic.
func ParseEnvelope(raw []byte) (Envelope, error) {
	if len(raw) == 0 {
		return Envelope{}, ErrEmptyMessage
	}

	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if msg.Type == FramingTypeConnectionEstablished {
		return Envelope{EventType: FramingTypeConnectionEstablished, Framing: true}, nil
	}

	if len(msg.Data) == 0 {
		return Envelope{}, ErrNoDiscriminator
	}

	var data wireData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if data.Type == "" {
		return Envelope{}, ErrNoDiscriminator
	}

	return Envelope{EventType: data.Type, Payload: msg.Data}, nil
}
