// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build !linux

package transport

import (
	"context"
	"errors"
	"time"

	errs "github.com/soothill/budsctl/pkg/errors"
)

// RFCOMM is a stub on platforms without AF_BLUETOOTH sockets.
type RFCOMM struct{}

// NewRFCOMM creates the RFCOMM transport stub.
func NewRFCOMM() *RFCOMM {
	return &RFCOMM{}
}

// Supported reports whether this build can open RFCOMM sockets.
func (*RFCOMM) Supported() bool { return false }

// Send always fails: RFCOMM control commands need Linux BlueZ sockets.
func (*RFCOMM) Send(_ context.Context, mac string, _ []byte, _ int, _ time.Duration) ([]byte, error) {
	return nil, errs.NewTransportConnectError(mac,
		errors.New("RFCOMM sockets are not supported on this platform"))
}
