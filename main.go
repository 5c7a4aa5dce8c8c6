// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Command budsctl controls Bluetooth earbuds via pluggable YAML protocols.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soothill/budsctl/config"
	"github.com/soothill/budsctl/discovery"
	"github.com/soothill/budsctl/match"
	"github.com/soothill/budsctl/pkg/logger"
	"github.com/soothill/budsctl/plugin"
	"github.com/soothill/budsctl/service"
	"github.com/soothill/budsctl/transport"
)

const usageText = `budsctl - Bluetooth earbuds control via pluggable YAML protocols

Usage:
  budsctl list                                       List available plugins and their features
  budsctl devices                                    List Bluetooth devices and matched plugin
  budsctl features [-device hint] [-plugin id]       List features for the resolved target
  budsctl set [-device hint] [-plugin id] <feature> [<value>]
                                                     Set a feature (omit value to list choices)
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usageText)
		return 2
	}

	command := args[0]
	if command == "help" || command == "-h" || command == "--help" {
		fmt.Print(usageText)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger.Initialize(cfg.Logging.Level)

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch command {
	case "list":
		return cmdList(cfg)
	case "devices":
		return cmdDevices(ctx, cfg)
	case "features":
		return cmdFeatures(ctx, cfg, args[1:])
	case "set":
		return cmdSet(ctx, cfg, args[1:])
	}

	fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n\n%s", command, usageText)
	return 2
}

// buildService loads the plugin set, wires the transports, and prints any
// non-fatal warnings to stderr.
func buildService(cfg *config.Config) (*service.Service, error) {
	loaded, err := plugin.Load(cfg.Plugins.ExtraDirs...)
	if err != nil {
		return nil, err
	}

	svc := service.New(
		loaded,
		discovery.NewScanner(),
		transport.WithRFCOMMBreaker(transport.NewRFCOMM()),
		transport.WithBLEBreaker(transport.NewBLE()),
	)

	for _, warning := range svc.LoadWarnings() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}
	for _, warning := range svc.RuntimeWarnings() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}
	return svc, nil
}

func cmdList(cfg *config.Config) int {
	svc, err := buildService(cfg)
	if err != nil {
		return fail(err)
	}

	plugins := svc.ListPlugins()
	if len(plugins) == 0 {
		fmt.Println("No plugins loaded")
		return 1
	}

	for _, p := range plugins {
		fmt.Printf("%s: %s\n", p.ID, p.Name)
		featureNames := make([]string, 0, len(p.Features))
		for name := range p.Features {
			featureNames = append(featureNames, name)
		}
		sort.Strings(featureNames)
		for _, feature := range featureNames {
			values := make([]string, 0, len(p.Features[feature].Values))
			for name := range p.Features[feature].Values {
				values = append(values, name)
			}
			sort.Strings(values)
			fmt.Printf("  %s: %s\n", feature, strings.Join(values, ", "))
		}
	}
	return 0
}

func cmdDevices(ctx context.Context, cfg *config.Config) int {
	svc, err := buildService(cfg)
	if err != nil {
		return fail(err)
	}

	devices, err := svc.ListDevices(ctx)
	if err != nil {
		return fail(err)
	}
	if len(devices) == 0 {
		fmt.Println("No Bluetooth devices found")
		return 0
	}

	for _, device := range devices {
		matched := "<no-match>"
		if p := match.BestPluginForDevice(device, svc.Plugins()); p != nil {
			matched = p.ID
		}
		fmt.Printf("%s %s -> %s\n", device.MAC, device.Name, matched)
	}
	return 0
}

func cmdFeatures(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("features", flag.ContinueOnError)
	device := fs.String("device", "", "MAC or partial name")
	pluginID := fs.String("plugin", "", "Plugin ID")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	svc, err := buildService(cfg)
	if err != nil {
		return fail(err)
	}

	target, catalog, err := svc.FeatureCatalog(ctx, *pluginID, *device)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("Target: %s (%s) via %s\n", target.Device.MAC, target.Device.Name, target.Plugin.ID)
	featureNames := make([]string, 0, len(catalog))
	for name := range catalog {
		featureNames = append(featureNames, name)
	}
	sort.Strings(featureNames)
	for _, feature := range featureNames {
		fmt.Printf("  %s: %s\n", feature, strings.Join(catalog[feature], ", "))
	}
	return 0
}

func cmdSet(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	device := fs.String("device", "", "MAC or partial name")
	pluginID := fs.String("plugin", "", "Plugin ID")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	positional := fs.Args()
	if len(positional) < 1 || len(positional) > 2 {
		fmt.Fprint(os.Stderr, "Usage: budsctl set [-device hint] [-plugin id] <feature> [<value>]\n")
		return 2
	}
	feature := positional[0]

	svc, err := buildService(cfg)
	if err != nil {
		return fail(err)
	}

	if len(positional) == 1 {
		target, values, err := svc.FeatureValues(ctx, feature, *pluginID, *device)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("Available values for '%s' on %s (%s): %s\n",
			feature, target.Device.MAC, target.Plugin.ID, strings.Join(values, ", "))
		return 0
	}

	result, err := svc.SetFeature(ctx, feature, positional[1], *pluginID, *device)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("Sent %s=%s to %s (%s) payload=%s\n",
		result.Feature, result.Value, result.Target.Device.MAC, result.Target.Plugin.ID, result.PayloadHex)
	if result.ResponseHex != "" {
		fmt.Printf("response=%s\n", result.ResponseHex)
	}
	return 0
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Debug().Err(err).Msg("Metrics listener stopped")
	}
}
