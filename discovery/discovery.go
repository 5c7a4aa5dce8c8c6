// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package discovery lists nearby Bluetooth devices by shelling out to the
// BlueZ command-line tools.
//
// A scan asks bluetoothctl for connected, then all, then paired devices, and
// falls back to scraping `hcitool con` when bluetoothctl yields nothing.
// Results are deduplicated by MAC and never cached: every Discover call
// reflects the device state at the moment of the call.
//
// A DeviceDiscoveryError is returned only when at least one discovery
// command failed with an error and none produced a device. Finding nothing
// is a zero-result success.
package discovery

import (
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	errs "github.com/soothill/budsctl/pkg/errors"
	"github.com/soothill/budsctl/pkg/logger"
	"github.com/soothill/budsctl/pkg/metrics"
)

// UnknownDeviceName is the display-name sentinel for devices whose name the
// fallback mechanism cannot see.
const UnknownDeviceName = "<unknown-device>"

var (
	deviceLineRE = regexp.MustCompile(`(?i)^Device\s+([0-9A-F:]{17})\s+(.+)$`)
	macRE        = regexp.MustCompile(`(?i)([0-9A-F]{2}(?::[0-9A-F]{2}){5})`)
)

// Device is one discovered Bluetooth device: canonical uppercase
// colon-separated MAC and a display name.
type Device struct {
	MAC  string
	Name string
}

// runner executes an external discovery command and returns its stdout.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Scanner discovers Bluetooth devices via external BlueZ tools.
type Scanner struct {
	run     runner
	limiter *rate.Limiter // paces subprocess spawns
}

// NewScanner creates a new device scanner.
func NewScanner() *Scanner {
	return &Scanner{
		run:     runCommand,
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 4),
	}
}

// Discover runs the discovery command chain and returns the devices found.
func (s *Scanner) Discover(ctx context.Context) ([]Device, error) {
	start := time.Now()
	defer func() {
		metrics.DiscoveryDuration.Observe(time.Since(start).Seconds())
	}()

	seen := make(map[string]bool)
	var devices []Device
	var commandErrors []string

	bluetoothctlArgs := [][]string{
		{"devices", "Connected"},
		{"devices"},
		{"paired-devices"},
	}
	for _, args := range bluetoothctlArgs {
		stdout, err := s.runDiscoveryCommand(ctx, &commandErrors, "bluetoothctl", args...)
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(string(stdout), "\n") {
			m := deviceLineRE.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			mac := strings.ToUpper(m[1])
			if seen[mac] {
				continue
			}
			seen[mac] = true
			devices = append(devices, Device{MAC: mac, Name: strings.TrimSpace(m[2])})
		}
	}

	if len(devices) == 0 {
		stdout, err := s.runDiscoveryCommand(ctx, &commandErrors, "hcitool", "con")
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(string(stdout), "\n") {
			m := macRE.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			mac := strings.ToUpper(m[1])
			if seen[mac] {
				continue
			}
			seen[mac] = true
			devices = append(devices, Device{MAC: mac, Name: UnknownDeviceName})
		}
	}

	if len(devices) == 0 && len(commandErrors) > 0 {
		return nil, errs.NewDeviceDiscoveryError(strings.Join(commandErrors, " | "))
	}

	metrics.DevicesDiscovered.Set(float64(len(devices)))
	logger.Debug().Int("devices", len(devices)).Msg("Bluetooth discovery complete")

	return devices, nil
}

// runDiscoveryCommand executes one discovery command. A missing binary is
// skipped silently; a failing command records its stderr in commandErrors.
// Only context cancellation propagates as an error.
func (s *Scanner) runDiscoveryCommand(ctx context.Context, commandErrors *[]string, name string, args ...string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	stdout, err := s.run(ctx, name, args...)
	if err == nil {
		return stdout, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, exec.ErrNotFound) {
		return nil, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr := strings.TrimSpace(string(exitErr.Stderr))
		if stderr != "" {
			cmdline := name + " " + strings.Join(args, " ")
			*commandErrors = append(*commandErrors, cmdline+" -> "+stderr)
		}
		return nil, nil
	}

	*commandErrors = append(*commandErrors, name+" -> "+err.Error())
	return nil, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
