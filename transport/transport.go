// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package transport delivers raw command payloads to Bluetooth devices over
// RFCOMM sockets or BLE GATT. Both transports implement the same one-shot
// capability: connect, send, optionally collect a response, disconnect.
// There is no retry logic here; callers get a typed success or failure per
// send.
package transport

import (
	"context"
	"time"
)

// RFCOMMSender sends a payload over a Bluetooth Classic RFCOMM channel and
// returns the device's response, or nil when the device sent nothing before
// the receive window elapsed.
type RFCOMMSender interface {
	Send(ctx context.Context, mac string, payload []byte, channel int, timeout time.Duration) ([]byte, error)
}

// BLESender sends a payload to a BLE GATT characteristic and returns the
// response collected from the notify characteristic (or a direct read), or
// nil when no response was available.
type BLESender interface {
	Send(ctx context.Context, mac string, payload []byte, opts BLEOptions) ([]byte, error)
}

// BLEOptions carries the per-send GATT parameters from a plugin's BLE
// transport spec. UUIDs are normalized lowercase 16-bit, 32-bit, or 128-bit
// forms; NotifyCharUUID is empty when the plugin does not use notifications.
type BLEOptions struct {
	ServiceUUID       string
	WriteCharUUID     string
	NotifyCharUUID    string
	WriteWithResponse bool
	Timeout           time.Duration
}
