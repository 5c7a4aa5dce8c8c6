// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package plugin provides the typed plugin document model and the
// loader/validator that produces it from bundled and user-supplied YAML
// documents.
package plugin

import "time"

// MatchRules describe how a plugin recognises its device: MAC address
// prefixes (uppercase) and case-insensitive name tokens.
type MatchRules struct {
	NameContains []string
	MACPrefix    []string
}

// TransportSpec is the tagged union over the two supported transports.
// Exactly one concrete variant (RFCOMM or BLE) backs each plugin; consumers
// type-switch on the variant rather than inspecting optional fields.
type TransportSpec interface {
	// Kind returns the wire name of the transport ("rfcomm" or "ble").
	Kind() string

	transportSpec()
}

// RFCOMM is the Bluetooth Classic serial transport variant.
type RFCOMM struct {
	Channel int
	Timeout time.Duration
}

// Kind returns "rfcomm".
func (RFCOMM) Kind() string { return "rfcomm" }

func (RFCOMM) transportSpec() {}

// BLE is the Bluetooth Low Energy GATT transport variant. UUIDs are
// normalized lowercase 16-bit, 32-bit, or 128-bit hex strings.
// NotifyCharUUID is empty when the plugin does not use notifications.
type BLE struct {
	ServiceUUID       string
	WriteCharUUID     string
	NotifyCharUUID    string
	WriteWithResponse bool
	Timeout           time.Duration
}

// Kind returns "ble".
func (BLE) Kind() string { return "ble" }

func (BLE) transportSpec() {}

// Feature is a named enumerated setting: each value name maps to the raw
// command payload that realises it (1-512 bytes, hex-decoded at load time).
type Feature struct {
	Values map[string][]byte
}

// Plugin is the validated, immutable representation of one plugin document.
// Built once at load time and never mutated afterwards.
type Plugin struct {
	ID        string
	Name      string
	Match     MatchRules
	Transport TransportSpec
	Features  map[string]Feature
}

// Loaded is the result of a plugin load: the merged id-keyed plugin set and
// any non-fatal warnings produced while merging.
type Loaded struct {
	Plugins  map[string]*Plugin
	Warnings []string
}
