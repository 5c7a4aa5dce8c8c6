// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for budsctl.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PluginsLoaded tracks the number of plugins in the loaded set
	PluginsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "budsctl_plugins_loaded",
		Help: "Number of plugins in the loaded plugin set",
	})

	// PluginOverrides tracks user documents that replaced packaged plugins
	PluginOverrides = promauto.NewCounter(prometheus.CounterOpts{
		Name: "budsctl_plugin_overrides_total",
		Help: "Total number of user plugins that overrode packaged plugins",
	})

	// PluginValidationFailures tracks rejected plugin documents
	PluginValidationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "budsctl_plugin_validation_failures_total",
		Help: "Total number of plugin documents rejected during validation",
	})

	// DevicesDiscovered tracks the device count of the latest discovery scan
	DevicesDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "budsctl_devices_discovered",
		Help: "Number of Bluetooth devices found by the latest discovery scan",
	})

	// DiscoveryDuration tracks how long device discovery takes
	DiscoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "budsctl_discovery_duration_seconds",
		Help:    "Duration of Bluetooth device discovery in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SendsTotal tracks payload sends per transport kind
	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budsctl_sends_total",
		Help: "Total number of payload sends",
	}, []string{"transport"})

	// SendErrors tracks failed payload sends per transport kind
	SendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budsctl_send_errors_total",
		Help: "Total number of failed payload sends",
	}, []string{"transport"})

	// SendDuration tracks how long a transport send takes
	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "budsctl_send_duration_seconds",
		Help:    "Duration of transport sends in seconds",
		Buckets: prometheus.DefBuckets,
	})
)
