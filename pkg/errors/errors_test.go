// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsHelpers(t *testing.T) {
	underlying := errors.New("boom")

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"plugin validation", NewPluginValidationError("p.yaml", "transport.channel", "bad"), IsPluginValidationError},
		{"plugin load", NewPluginLoadError("p.yaml", underlying), IsPluginLoadError},
		{"device discovery", NewDeviceDiscoveryError("details"), IsDeviceDiscoveryError},
		{"device selection", NewDeviceSelectionError("reason"), IsDeviceSelectionError},
		{"feature resolution", NewFeatureResolutionError("reason"), IsFeatureResolutionError},
		{"transport connect", NewTransportConnectError("88:92:CC:11:22:33", underlying), IsTransportConnectError},
		{"transport timeout", NewTransportTimeoutError("connect", "88:92:CC:11:22:33"), IsTransportTimeoutError},
		{"transport send", NewTransportSendError("write", underlying), IsTransportSendError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("check(%v) = false, want true", tt.err)
			}
			// Helpers must see through wrapping.
			if !tt.check(fmt.Errorf("wrapped: %w", tt.err)) {
				t.Errorf("check(wrapped %v) = false, want true", tt.err)
			}
			if tt.check(underlying) {
				t.Errorf("check matched an unrelated error")
			}
			if tt.check(nil) {
				t.Errorf("check(nil) = true")
			}
		})
	}
}

func TestIsTransportError(t *testing.T) {
	if !IsTransportError(NewTransportConnectError("", errors.New("x"))) {
		t.Error("connect error not recognised as transport error")
	}
	if !IsTransportError(NewTransportTimeoutError("connect", "")) {
		t.Error("timeout error not recognised as transport error")
	}
	if !IsTransportError(NewTransportSendError("write", errors.New("x"))) {
		t.Error("send error not recognised as transport error")
	}
	if IsTransportError(NewDeviceSelectionError("reason")) {
		t.Error("selection error misclassified as transport error")
	}
}

func TestPluginValidationErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *PluginValidationError
		want []string
	}{
		{
			name: "source and path",
			err:  NewPluginValidationError("p.yaml", "transport.channel", "must be an integer"),
			want: []string{"p.yaml", "transport.channel", "must be an integer"},
		},
		{
			name: "source only",
			err:  NewPluginValidationError("p.yaml", "", "duplicate key"),
			want: []string{"p.yaml", "duplicate key"},
		},
		{
			name: "reason only",
			err:  NewPluginValidationError("", "", "bad document"),
			want: []string{"plugin validation failed", "bad document"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, fragment := range tt.want {
				if !strings.Contains(msg, fragment) {
					t.Errorf("Error() = %q, missing %q", msg, fragment)
				}
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	underlying := errors.New("root cause")

	for _, err := range []error{
		NewPluginLoadError("p.yaml", underlying),
		NewTransportConnectError("88:92:CC:11:22:33", underlying),
		NewTransportSendError("write", underlying),
	} {
		if !errors.Is(err, underlying) {
			t.Errorf("%T does not unwrap to the underlying error", err)
		}
	}
}

func TestDeviceDiscoveryErrorMessage(t *testing.T) {
	withDetails := NewDeviceDiscoveryError("bluetoothctl -> dbus refused")
	if !strings.Contains(withDetails.Error(), "dbus refused") {
		t.Errorf("Error() = %q, missing details", withDetails.Error())
	}
	if !strings.Contains(withDetails.Error(), "BlueZ") {
		t.Errorf("Error() = %q, missing remediation hint", withDetails.Error())
	}

	bare := NewDeviceDiscoveryError("")
	if strings.Contains(bare.Error(), "Details:") {
		t.Errorf("Error() = %q, should omit empty details", bare.Error())
	}
}

func TestTransportTimeoutErrorMessage(t *testing.T) {
	err := NewTransportTimeoutError("connect", "88:92:CC:11:22:33")
	if !strings.Contains(err.Error(), "connect") || !strings.Contains(err.Error(), "88:92:CC:11:22:33") {
		t.Errorf("Error() = %q", err.Error())
	}
}
