// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package transport

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	errs "github.com/soothill/budsctl/pkg/errors"
)

const (
	breakerConsecutiveFailures = 3
	breakerResetTimeout        = 30 * time.Second
)

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     breakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
	})
}

// BreakerRFCOMM wraps an RFCOMMSender in a circuit breaker so a device that
// keeps failing is reported immediately instead of re-opening sockets.
type BreakerRFCOMM struct {
	inner RFCOMMSender
	cb    *gobreaker.CircuitBreaker
}

// WithRFCOMMBreaker wraps inner in a circuit breaker.
func WithRFCOMMBreaker(inner RFCOMMSender) *BreakerRFCOMM {
	return &BreakerRFCOMM{inner: inner, cb: newBreaker("rfcomm")}
}

// Supported reports whether the wrapped transport can open RFCOMM sockets.
func (b *BreakerRFCOMM) Supported() bool {
	if probe, ok := b.inner.(interface{ Supported() bool }); ok {
		return probe.Supported()
	}
	return true
}

// Send implements RFCOMMSender.
func (b *BreakerRFCOMM) Send(ctx context.Context, mac string, payload []byte, channel int, timeout time.Duration) ([]byte, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Send(ctx, mac, payload, channel, timeout)
	})
	if err != nil {
		return nil, breakerError(mac, err)
	}
	response, _ := result.([]byte)
	return response, nil
}

// BreakerBLE wraps a BLESender in a circuit breaker.
type BreakerBLE struct {
	inner BLESender
	cb    *gobreaker.CircuitBreaker
}

// WithBLEBreaker wraps inner in a circuit breaker.
func WithBLEBreaker(inner BLESender) *BreakerBLE {
	return &BreakerBLE{inner: inner, cb: newBreaker("ble")}
}

// Send implements BLESender.
func (b *BreakerBLE) Send(ctx context.Context, mac string, payload []byte, opts BLEOptions) ([]byte, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Send(ctx, mac, payload, opts)
	})
	if err != nil {
		return nil, breakerError(mac, err)
	}
	response, _ := result.([]byte)
	return response, nil
}

// breakerError keeps the typed transport errors intact and maps the
// breaker's own open-circuit rejections onto the connect failure kind.
func breakerError(mac string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errs.NewTransportConnectError(mac, err)
	}
	return err
}
