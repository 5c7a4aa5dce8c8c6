// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	errs "github.com/soothill/budsctl/pkg/errors"
)

const rfcommReadBufferSize = 1024

// RFCOMM sends payloads over AF_BLUETOOTH stream sockets.
type RFCOMM struct{}

// NewRFCOMM creates the RFCOMM transport.
func NewRFCOMM() *RFCOMM {
	return &RFCOMM{}
}

// Supported reports whether this build can open RFCOMM sockets.
func (*RFCOMM) Supported() bool { return true }

// Send connects to mac on the given RFCOMM channel, writes the payload, and
// reads at most one response. A receive window that elapses without data is
// a nil response, not an error.
func (*RFCOMM) Send(ctx context.Context, mac string, payload []byte, channel int, timeout time.Duration) ([]byte, error) {
	addr, err := rfcommAddr(mac)
	if err != nil {
		return nil, errs.NewTransportConnectError(mac, err)
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, errs.NewTransportConnectError(mac, fmt.Errorf("could not create RFCOMM socket: %w", err))
	}

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	_ = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv)
	_ = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)

	sa := &unix.SockaddrRFCOMM{Addr: addr, Channel: uint8(channel)}

	// Blocking connect runs in a goroutine; closing the fd unblocks it when
	// the deadline or the caller's context expires first.
	connectDone := make(chan error, 1)
	go func() {
		connectDone <- unix.Connect(fd, sa)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-connectDone:
		if err != nil {
			unix.Close(fd)
			return nil, errs.NewTransportConnectError(mac,
				fmt.Errorf("RFCOMM connect on channel %d: %w", channel, err))
		}
	case <-timer.C:
		unix.Close(fd)
		return nil, errs.NewTransportTimeoutError("connect", mac)
	case <-ctx.Done():
		unix.Close(fd)
		return nil, errs.NewTransportConnectError(mac, ctx.Err())
	}
	defer unix.Close(fd)

	if err := writeAll(fd, payload); err != nil {
		return nil, errs.NewTransportSendError("write", err)
	}

	buf := make([]byte, rfcommReadBufferSize)
	n, err := unix.Read(fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return nil, nil
		}
		return nil, errs.NewTransportSendError("read", err)
	}
	if n <= 0 {
		return nil, nil
	}
	return buf[:n], nil
}

func writeAll(fd int, payload []byte) error {
	for len(payload) > 0 {
		n, err := unix.Write(fd, payload)
		if err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

// rfcommAddr converts a colon-separated MAC into the little-endian byte
// order the kernel expects.
func rfcommAddr(mac string) ([6]byte, error) {
	var addr [6]byte
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return addr, fmt.Errorf("invalid Bluetooth address %q", mac)
	}
	for i := 0; i < 6; i++ {
		addr[i] = hw[5-i]
	}
	return addr, nil
}
