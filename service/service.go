// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package service is the session layer tying plugins, discovery, and
// transports together. A Service is constructed once per process with the
// immutable plugin set and is threaded through every operation; device
// lists and resolved targets are produced fresh per call and never cached.
package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/soothill/budsctl/discovery"
	"github.com/soothill/budsctl/match"
	errs "github.com/soothill/budsctl/pkg/errors"
	"github.com/soothill/budsctl/pkg/logger"
	"github.com/soothill/budsctl/pkg/metrics"
	"github.com/soothill/budsctl/plugin"
	"github.com/soothill/budsctl/transport"
)

// DeviceScanner lists currently visible Bluetooth devices.
type DeviceScanner interface {
	Discover(ctx context.Context) ([]discovery.Device, error)
}

// ResolvedTarget pairs a discovered device with the plugin judged to
// control it.
type ResolvedTarget struct {
	Device discovery.Device
	Plugin *plugin.Plugin
}

// SendResult is the one-shot record of a completed send.
type SendResult struct {
	Target      *ResolvedTarget
	Feature     string
	Value       string
	PayloadHex  string
	ResponseHex string // empty when the transport returned no response
}

// Service owns the loaded plugin set for the lifetime of the process and
// exposes the resolve/query/send operations.
type Service struct {
	plugins         map[string]*plugin.Plugin
	loadWarnings    []string
	runtimeWarnings []string
	scanner         DeviceScanner
	rfcomm          transport.RFCOMMSender
	ble             transport.BLESender
}

// New constructs a Service from a loaded plugin set and its collaborators.
func New(loaded *plugin.Loaded, scanner DeviceScanner, rfcomm transport.RFCOMMSender, ble transport.BLESender) *Service {
	var runtimeWarnings []string
	if probe, ok := rfcomm.(interface{ Supported() bool }); ok && !probe.Supported() {
		runtimeWarnings = append(runtimeWarnings,
			"RFCOMM sockets are unavailable on this platform; RFCOMM control commands will fail.")
	}

	return &Service{
		plugins:         loaded.Plugins,
		loadWarnings:    loaded.Warnings,
		runtimeWarnings: runtimeWarnings,
		scanner:         scanner,
		rfcomm:          rfcomm,
		ble:             ble,
	}
}

// LoadWarnings returns the non-fatal warnings collected while loading
// plugins (e.g. user overrides of packaged plugins).
func (s *Service) LoadWarnings() []string {
	return s.loadWarnings
}

// RuntimeWarnings returns non-fatal warnings about the current runtime.
func (s *Service) RuntimeWarnings() []string {
	return s.runtimeWarnings
}

// Plugins returns the loaded plugin set keyed by id.
func (s *Service) Plugins() map[string]*plugin.Plugin {
	return s.plugins
}

// ListPlugins returns the loaded plugins sorted by id.
func (s *Service) ListPlugins() []*plugin.Plugin {
	ids := make([]string, 0, len(s.plugins))
	for id := range s.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	plugins := make([]*plugin.Plugin, 0, len(ids))
	for _, id := range ids {
		plugins = append(plugins, s.plugins[id])
	}
	return plugins
}

// ListDevices performs a fresh discovery scan.
func (s *Service) ListDevices(ctx context.Context) ([]discovery.Device, error) {
	return s.scanner.Discover(ctx)
}

// ResolveTarget narrows the discovered devices to exactly one (device,
// plugin) pair. With pluginID set, devices are tested only against that
// plugin; otherwise each device gets its best-scoring plugin. The hint is
// applied strictly after matching: matching determines capability, the hint
// only selects among already-capable candidates.
func (s *Service) ResolveTarget(ctx context.Context, pluginID, deviceHint string) (*ResolvedTarget, error) {
	devices, err := s.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, errs.NewDeviceSelectionError("No Bluetooth devices found. Ensure your target device is connected.")
	}

	var pluginOverride *plugin.Plugin
	if pluginID != "" {
		pluginOverride = s.plugins[pluginID]
		if pluginOverride == nil {
			return nil, errs.NewDeviceSelectionError(
				fmt.Sprintf("Unknown plugin '%s'. Use 'budsctl list' to inspect available plugins.", pluginID))
		}
	}

	var candidates []*ResolvedTarget
	for _, device := range devices {
		var p *plugin.Plugin
		if pluginOverride != nil {
			if match.Score(device, pluginOverride) == 0 {
				continue
			}
			p = pluginOverride
		} else {
			p = match.BestPluginForDevice(device, s.plugins)
			if p == nil {
				continue
			}
		}
		candidates = append(candidates, &ResolvedTarget{Device: device, Plugin: p})
	}

	if deviceHint != "" {
		hint := strings.ToLower(deviceHint)
		var hinted []*ResolvedTarget
		for _, c := range candidates {
			if strings.Contains(strings.ToLower(c.Device.MAC), hint) ||
				strings.Contains(strings.ToLower(c.Device.Name), hint) ||
				strings.Contains(strings.ToLower(c.Plugin.ID), hint) ||
				strings.Contains(strings.ToLower(c.Plugin.Name), hint) {
				hinted = append(hinted, c)
			}
		}
		if len(hinted) == 0 {
			return nil, errs.NewDeviceSelectionError(fmt.Sprintf("No device found matching '%s'", deviceHint))
		}
		candidates = hinted
	}

	if len(candidates) == 0 {
		if pluginID != "" {
			return nil, errs.NewDeviceSelectionError(
				fmt.Sprintf("No connected device matched plugin '%s'.", pluginID))
		}
		return nil, errs.NewDeviceSelectionError(
			"No connected device matched any plugin. Use -plugin to target explicitly or add a plugin.")
	}

	if len(candidates) > 1 {
		descriptions := make([]string, 0, len(candidates))
		for _, c := range candidates {
			descriptions = append(descriptions, fmt.Sprintf("%s (%s)", c.Device.MAC, c.Device.Name))
		}
		return nil, errs.NewDeviceSelectionError(fmt.Sprintf(
			"Multiple candidate devices found: %s. Use -device to choose one.",
			strings.Join(descriptions, ", ")))
	}

	return candidates[0], nil
}

// FeatureValues resolves a target and returns the sorted value names the
// given feature supports on it.
func (s *Service) FeatureValues(ctx context.Context, feature, pluginID, deviceHint string) (*ResolvedTarget, []string, error) {
	target, err := s.ResolveTarget(ctx, pluginID, deviceHint)
	if err != nil {
		return nil, nil, err
	}

	spec, ok := target.Plugin.Features[feature]
	if !ok {
		available := make([]string, 0, len(target.Plugin.Features))
		for name := range target.Plugin.Features {
			available = append(available, name)
		}
		sort.Strings(available)
		return nil, nil, errs.NewFeatureResolutionError(fmt.Sprintf(
			"Plugin '%s' does not define feature '%s'. Available: %s",
			target.Plugin.ID, feature, strings.Join(available, ", ")))
	}

	values := make([]string, 0, len(spec.Values))
	for name := range spec.Values {
		values = append(values, name)
	}
	sort.Strings(values)
	return target, values, nil
}

// FeatureCatalog resolves a target and returns its full feature table with
// sorted value names.
func (s *Service) FeatureCatalog(ctx context.Context, pluginID, deviceHint string) (*ResolvedTarget, map[string][]string, error) {
	target, err := s.ResolveTarget(ctx, pluginID, deviceHint)
	if err != nil {
		return nil, nil, err
	}

	catalog := make(map[string][]string, len(target.Plugin.Features))
	for featureName, spec := range target.Plugin.Features {
		values := make([]string, 0, len(spec.Values))
		for name := range spec.Values {
			values = append(values, name)
		}
		sort.Strings(values)
		catalog[featureName] = values
	}
	return target, catalog, nil
}

// SetFeature resolves a target, looks up the payload for feature=value, and
// delivers it over the plugin's transport.
func (s *Service) SetFeature(ctx context.Context, feature, value, pluginID, deviceHint string) (*SendResult, error) {
	target, allowedValues, err := s.FeatureValues(ctx, feature, pluginID, deviceHint)
	if err != nil {
		return nil, err
	}

	payload, ok := target.Plugin.Features[feature].Values[value]
	if !ok {
		return nil, errs.NewFeatureResolutionError(fmt.Sprintf(
			"Feature '%s' does not support value '%s'. Allowed: %s",
			feature, value, strings.Join(allowedValues, ", ")))
	}

	response, err := s.dispatch(ctx, target, payload)
	if err != nil {
		return nil, err
	}

	result := &SendResult{
		Target:     target,
		Feature:    feature,
		Value:      value,
		PayloadHex: hex.EncodeToString(payload),
	}
	if len(response) > 0 {
		result.ResponseHex = hex.EncodeToString(response)
	}

	logger.Info().
		Str("mac", target.Device.MAC).
		Str("plugin_id", target.Plugin.ID).
		Str("feature", feature).
		Str("value", value).
		Str("payload", result.PayloadHex).
		Msg("Payload sent")

	return result, nil
}

// dispatch branches on the plugin's transport variant and invokes the
// matching send capability. The variant fields were validated at load time;
// the re-checks here guard against hand-built plugins.
func (s *Service) dispatch(ctx context.Context, target *ResolvedTarget, payload []byte) ([]byte, error) {
	kind := target.Plugin.Transport.Kind()
	start := time.Now()
	defer func() {
		metrics.SendDuration.Observe(time.Since(start).Seconds())
	}()

	var response []byte
	var err error
	switch spec := target.Plugin.Transport.(type) {
	case plugin.RFCOMM:
		if spec.Channel == 0 {
			return nil, errs.NewFeatureResolutionError(fmt.Sprintf(
				"Plugin '%s' has invalid RFCOMM configuration (missing channel).", target.Plugin.ID))
		}
		response, err = s.rfcomm.Send(ctx, target.Device.MAC, payload, spec.Channel, spec.Timeout)

	case plugin.BLE:
		if spec.ServiceUUID == "" || spec.WriteCharUUID == "" {
			return nil, errs.NewFeatureResolutionError(fmt.Sprintf(
				"Plugin '%s' has invalid BLE configuration (missing UUIDs).", target.Plugin.ID))
		}
		response, err = s.ble.Send(ctx, target.Device.MAC, payload, transport.BLEOptions{
			ServiceUUID:       spec.ServiceUUID,
			WriteCharUUID:     spec.WriteCharUUID,
			NotifyCharUUID:    spec.NotifyCharUUID,
			WriteWithResponse: spec.WriteWithResponse,
			Timeout:           spec.Timeout,
		})

	default:
		return nil, errs.NewFeatureResolutionError(fmt.Sprintf(
			"Unsupported transport type '%s' for plugin '%s'.", kind, target.Plugin.ID))
	}

	metrics.SendsTotal.WithLabelValues(kind).Inc()
	if err != nil {
		metrics.SendErrors.WithLabelValues(kind).Inc()
		return nil, err
	}
	return response, nil
}
