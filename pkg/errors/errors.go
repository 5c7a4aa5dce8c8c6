// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package errors provides structured error types for budsctl.
//
// Every failure the core can produce is a typed error from the taxonomy
// below, surfaced verbatim to the caller. Callers inspect errors with
// errors.As() or the Is* helpers; there is no internal recovery or retry.
//
// # Example Usage
//
//	_, err := svc.ResolveTarget(ctx, "", "oneplus")
//	if errors.IsDeviceSelectionError(err) {
//	    fmt.Fprintf(os.Stderr, "Error: %v\n", err)
//	}
package errors

import (
	"errors"
	"fmt"
)

// PluginValidationError reports a plugin document that violates the schema
// or semantic rules (bad hex, bad UUID, duplicate key, unsupported
// transport type).
type PluginValidationError struct {
	Source string // File or embedded document the violation came from
	Path   string // Dotted path to the offending field, if known
	Reason string // Why validation failed
}

func (e *PluginValidationError) Error() string {
	switch {
	case e.Source != "" && e.Path != "":
		return fmt.Sprintf("plugin validation failed for %s (%s): %s", e.Source, e.Path, e.Reason)
	case e.Source != "":
		return fmt.Sprintf("plugin validation failed for %s: %s", e.Source, e.Reason)
	case e.Path != "":
		return fmt.Sprintf("plugin validation failed (%s): %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("plugin validation failed: %s", e.Reason)
}

// NewPluginValidationError creates a new plugin validation error.
func NewPluginValidationError(source, path, reason string) *PluginValidationError {
	return &PluginValidationError{Source: source, Path: path, Reason: reason}
}

// IsPluginValidationError checks if an error is a PluginValidationError.
func IsPluginValidationError(err error) bool {
	var ve *PluginValidationError
	return errors.As(err, &ve)
}

// PluginLoadError reports an I/O failure reading a plugin source.
type PluginLoadError struct {
	Source string // File or directory that could not be read
	Err    error  // Underlying error
}

func (e *PluginLoadError) Error() string {
	return fmt.Sprintf("could not read plugin source %s: %v", e.Source, e.Err)
}

func (e *PluginLoadError) Unwrap() error {
	return e.Err
}

// NewPluginLoadError creates a new plugin load error.
func NewPluginLoadError(source string, err error) *PluginLoadError {
	return &PluginLoadError{Source: source, Err: err}
}

// IsPluginLoadError checks if an error is a PluginLoadError.
func IsPluginLoadError(err error) bool {
	var le *PluginLoadError
	return errors.As(err, &le)
}

// DeviceDiscoveryError reports that every discovery mechanism failed with an
// error. A scan that simply finds nothing is a zero-result success, not a
// DeviceDiscoveryError.
type DeviceDiscoveryError struct {
	Details string // Joined per-command failure details
}

func (e *DeviceDiscoveryError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("Bluetooth discovery failed. Ensure a working D-Bus/BlueZ session. Details: %s", e.Details)
	}
	return "Bluetooth discovery failed. Ensure a working D-Bus/BlueZ session."
}

// NewDeviceDiscoveryError creates a new device discovery error.
func NewDeviceDiscoveryError(details string) *DeviceDiscoveryError {
	return &DeviceDiscoveryError{Details: details}
}

// IsDeviceDiscoveryError checks if an error is a DeviceDiscoveryError.
func IsDeviceDiscoveryError(err error) bool {
	var de *DeviceDiscoveryError
	return errors.As(err, &de)
}

// DeviceSelectionError reports that target resolution could not narrow the
// candidate set to exactly one device, or that an explicit plugin id was
// unknown, or that a device hint matched nothing.
type DeviceSelectionError struct {
	Reason string
}

func (e *DeviceSelectionError) Error() string {
	return e.Reason
}

// NewDeviceSelectionError creates a new device selection error.
func NewDeviceSelectionError(reason string) *DeviceSelectionError {
	return &DeviceSelectionError{Reason: reason}
}

// IsDeviceSelectionError checks if an error is a DeviceSelectionError.
func IsDeviceSelectionError(err error) bool {
	var se *DeviceSelectionError
	return errors.As(err, &se)
}

// FeatureResolutionError reports an unknown feature, an unknown value, or a
// transport misconfiguration found at dispatch time.
type FeatureResolutionError struct {
	Reason string
}

func (e *FeatureResolutionError) Error() string {
	return e.Reason
}

// NewFeatureResolutionError creates a new feature resolution error.
func NewFeatureResolutionError(reason string) *FeatureResolutionError {
	return &FeatureResolutionError{Reason: reason}
}

// IsFeatureResolutionError checks if an error is a FeatureResolutionError.
func IsFeatureResolutionError(err error) bool {
	var fe *FeatureResolutionError
	return errors.As(err, &fe)
}

// TransportConnectError reports a failure to establish the RFCOMM or BLE
// connection to a device.
type TransportConnectError struct {
	MAC string // Device address, if known
	Err error  // Underlying error or description
}

func (e *TransportConnectError) Error() string {
	if e.MAC != "" {
		return fmt.Sprintf("transport connect (%s): %v", e.MAC, e.Err)
	}
	return fmt.Sprintf("transport connect: %v", e.Err)
}

func (e *TransportConnectError) Unwrap() error {
	return e.Err
}

// NewTransportConnectError creates a new transport connect error.
func NewTransportConnectError(mac string, err error) *TransportConnectError {
	return &TransportConnectError{MAC: mac, Err: err}
}

// IsTransportConnectError checks if an error is a TransportConnectError.
func IsTransportConnectError(err error) bool {
	var ce *TransportConnectError
	return errors.As(err, &ce)
}

// TransportTimeoutError reports that a transport operation exceeded the
// plugin-configured deadline. Callers that retry should retry only on this.
type TransportTimeoutError struct {
	Op  string // Operation that timed out (e.g. "connect", "notify wait")
	MAC string // Device address, if known
}

func (e *TransportTimeoutError) Error() string {
	if e.MAC != "" {
		return fmt.Sprintf("transport %s timed out for %s", e.Op, e.MAC)
	}
	return fmt.Sprintf("transport %s timed out", e.Op)
}

// NewTransportTimeoutError creates a new transport timeout error.
func NewTransportTimeoutError(op, mac string) *TransportTimeoutError {
	return &TransportTimeoutError{Op: op, MAC: mac}
}

// IsTransportTimeoutError checks if an error is a TransportTimeoutError.
func IsTransportTimeoutError(err error) bool {
	var te *TransportTimeoutError
	return errors.As(err, &te)
}

// TransportSendError reports a failure to deliver the payload or read the
// response once connected.
type TransportSendError struct {
	Op  string // Operation that failed (e.g. "write", "read")
	Err error  // Underlying error
}

func (e *TransportSendError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport send failed: %v", e.Err)
}

func (e *TransportSendError) Unwrap() error {
	return e.Err
}

// NewTransportSendError creates a new transport send error.
func NewTransportSendError(op string, err error) *TransportSendError {
	return &TransportSendError{Op: op, Err: err}
}

// IsTransportSendError checks if an error is a TransportSendError.
func IsTransportSendError(err error) bool {
	var se *TransportSendError
	return errors.As(err, &se)
}

// IsTransportError reports whether err is any of the transport-boundary
// failures.
func IsTransportError(err error) bool {
	return IsTransportConnectError(err) || IsTransportTimeoutError(err) || IsTransportSendError(err)
}
