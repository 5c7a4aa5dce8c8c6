// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package plugin

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/soothill/budsctl/pkg/errors"
)

// isolateUserDirs points the XDG plugin directories at a fresh temp tree so
// plugins on the developer's machine cannot leak into the test.
func isolateUserDirs(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "cfg"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmp, "data"))
	return tmp
}

func writeUserPlugin(t *testing.T, tmp, name, content string) {
	t.Helper()
	dir := filepath.Join(tmp, "cfg", "budsctl", "plugins")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadPackagedPlugins(t *testing.T) {
	isolateUserDirs(t)

	loaded, err := Load()
	require.NoError(t, err)
	require.Contains(t, loaded.Plugins, "oneplus_buds4")

	p := loaded.Plugins["oneplus_buds4"]
	rfcomm, ok := p.Transport.(RFCOMM)
	require.True(t, ok, "oneplus_buds4 should use the RFCOMM transport")
	assert.Equal(t, 15, rfcomm.Channel)
	assert.Equal(t, 3*time.Second, rfcomm.Timeout)
	assert.True(t, bytes.Equal(
		p.Features["anc"].Values["on"],
		[]byte{0xaa, 0x0a, 0x00, 0x00, 0x04, 0x04, 0x48, 0x03, 0x00, 0x01, 0x01, 0x02},
	))
	assert.Contains(t, p.Features["anc"].Values, "off")
	assert.Contains(t, p.Features["anc"].Values, "transparency")
	assert.Contains(t, p.Features["anc"].Values, "adaptive")

	require.Contains(t, loaded.Plugins, "soundcore_liberty4")
	ble, ok := loaded.Plugins["soundcore_liberty4"].Transport.(BLE)
	require.True(t, ok, "soundcore_liberty4 should use the BLE transport")
	assert.False(t, ble.WriteWithResponse)
	assert.Empty(t, loaded.Warnings)
}

func TestLoadRejectsInvalidHex(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"non-hex characters", `"xyz"`},
		{"odd length", `"a"`},
		{"oversize payload", `"` + strings.Repeat("aa", 513) + `"`},
		{"empty", `""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := isolateUserDirs(t)
			writeUserPlugin(t, tmp, "bad.yaml", `
id: bad_hex
name: Bad Hex
match:
  name_contains: ["Bad"]
  mac_prefix: ["00:11:22"]
transport:
  type: rfcomm
  channel: 15
features:
  anc:
    type: enum
    values:
      on: `+tt.value+`
`)
			_, err := Load()
			require.Error(t, err)
			assert.True(t, errs.IsPluginValidationError(err), "error = %v", err)
		})
	}
}

func TestLoadNormalizesMixedCaseHex(t *testing.T) {
	tmp := isolateUserDirs(t)
	writeUserPlugin(t, tmp, "mixed.yaml", `
id: mixed_hex
name: Mixed Hex
match:
  name_contains: ["Mixed"]
  mac_prefix: ["00:11:22"]
transport:
  type: rfcomm
  channel: 2
features:
  anc:
    type: enum
    values:
      on: "AA 00"
`)
	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x00}, loaded.Plugins["mixed_hex"].Features["anc"].Values["on"])
}

func TestLoadRejectsMissingRequiredKeys(t *testing.T) {
	tmp := isolateUserDirs(t)
	writeUserPlugin(t, tmp, "missing.yaml", `
id: missing
name: Missing
match:
  name_contains: ["Missing"]
  mac_prefix: ["AA:BB:CC"]
transport:
  type: rfcomm
  channel: 1
`)
	_, err := Load()
	require.Error(t, err)
	assert.True(t, errs.IsPluginValidationError(err), "error = %v", err)
}

func TestLoadUserPluginOverridesPackaged(t *testing.T) {
	tmp := isolateUserDirs(t)
	writeUserPlugin(t, tmp, "override.yaml", `
id: oneplus_buds4
name: User Override
match:
  name_contains: ["OnePlus Buds 4"]
  mac_prefix: ["88:92:CC"]
transport:
  type: rfcomm
  channel: 16
features:
  anc:
    type: enum
    values:
      on: "aa00"
`)
	loaded, err := Load()
	require.NoError(t, err)

	p := loaded.Plugins["oneplus_buds4"]
	assert.Equal(t, "User Override", p.Name)
	assert.Equal(t, 16, p.Transport.(RFCOMM).Channel)

	require.Len(t, loaded.Warnings, 1)
	assert.Contains(t, loaded.Warnings[0], "overrides")
	assert.Contains(t, loaded.Warnings[0], "oneplus_buds4")
}

func TestLoadRejectsDuplicateValueKeys(t *testing.T) {
	tmp := isolateUserDirs(t)
	writeUserPlugin(t, tmp, "dup.yaml", `
id: dup
name: Duplicate
match:
  name_contains: ["Duplicate"]
  mac_prefix: ["AA:BB:CC"]
transport:
  type: rfcomm
  channel: 15
features:
  anc:
    type: enum
    values:
      on: "aa00"
      on: "aa01"
`)
	_, err := Load()
	require.Error(t, err)
	assert.True(t, errs.IsPluginValidationError(err), "error = %v", err)
}

func TestLoadBLEPlugin(t *testing.T) {
	tmp := isolateUserDirs(t)
	writeUserPlugin(t, tmp, "ble.yaml", `
id: my_ble_buds
name: My BLE Buds
match:
  name_contains: ["My BLE Buds"]
  mac_prefix: ["AA:BB:CC"]
transport:
  type: ble
  service_uuid: "0000180F-0000-1000-8000-00805F9B34FB"
  write_char_uuid: "00002a19-0000-1000-8000-00805f9b34fb"
  notify_char_uuid: "00002a1a-0000-1000-8000-00805f9b34fb"
  write_with_response: "False"
  timeout_s: 2.5
features:
  game_mode:
    type: enum
    values:
      on: "aa01"
      off: "aa00"
`)
	loaded, err := Load()
	require.NoError(t, err)

	ble, ok := loaded.Plugins["my_ble_buds"].Transport.(BLE)
	require.True(t, ok, "my_ble_buds should use the BLE transport")
	assert.Equal(t, "0000180f-0000-1000-8000-00805f9b34fb", ble.ServiceUUID)
	assert.Equal(t, "00002a19-0000-1000-8000-00805f9b34fb", ble.WriteCharUUID)
	assert.Equal(t, "00002a1a-0000-1000-8000-00805f9b34fb", ble.NotifyCharUUID)
	assert.False(t, ble.WriteWithResponse)
	assert.Equal(t, 2500*time.Millisecond, ble.Timeout)

	// Bare on/off value names survive verbatim.
	assert.Contains(t, loaded.Plugins["my_ble_buds"].Features["game_mode"].Values, "on")
	assert.Contains(t, loaded.Plugins["my_ble_buds"].Features["game_mode"].Values, "off")
}

func TestLoadRejectsBadUUID(t *testing.T) {
	tmp := isolateUserDirs(t)
	writeUserPlugin(t, tmp, "baduuid.yaml", `
id: bad_uuid
name: Bad UUID
match:
  name_contains: ["Bad"]
  mac_prefix: ["AA:BB:CC"]
transport:
  type: ble
  service_uuid: "not-a-uuid"
  write_char_uuid: "00002a19-0000-1000-8000-00805f9b34fb"
features:
  anc:
    type: enum
    values:
      on: "aa00"
`)
	_, err := Load()
	require.Error(t, err)
	assert.True(t, errs.IsPluginValidationError(err), "error = %v", err)
}

func TestLoadRejectsUnsupportedTransportType(t *testing.T) {
	tmp := isolateUserDirs(t)
	writeUserPlugin(t, tmp, "spi.yaml", `
id: spi_buds
name: SPI Buds
match:
  name_contains: ["SPI"]
  mac_prefix: ["AA:BB:CC"]
transport:
  type: spi
features:
  anc:
    type: enum
    values:
      on: "aa00"
`)
	_, err := Load()
	require.Error(t, err)
	assert.True(t, errs.IsPluginValidationError(err), "error = %v", err)
}

func TestLoadRejectsRFCOMMWithoutChannel(t *testing.T) {
	tmp := isolateUserDirs(t)
	writeUserPlugin(t, tmp, "nochan.yaml", `
id: no_channel
name: No Channel
match:
  name_contains: ["No Channel"]
  mac_prefix: ["AA:BB:CC"]
transport:
  type: rfcomm
features:
  anc:
    type: enum
    values:
      on: "aa00"
`)
	_, err := Load()
	require.Error(t, err)
	assert.True(t, errs.IsPluginValidationError(err), "error = %v", err)
}

func TestLoadRejectsNonBooleanWriteWithResponse(t *testing.T) {
	tmp := isolateUserDirs(t)
	writeUserPlugin(t, tmp, "badbool.yaml", `
id: bad_bool
name: Bad Bool
match:
  name_contains: ["Bad"]
  mac_prefix: ["AA:BB:CC"]
transport:
  type: ble
  service_uuid: "180f"
  write_char_uuid: "2a19"
  write_with_response: "maybe"
features:
  anc:
    type: enum
    values:
      on: "aa00"
`)
	_, err := Load()
	require.Error(t, err)
	assert.True(t, errs.IsPluginValidationError(err), "error = %v", err)
}

func TestLoadMACPrefixesUppercased(t *testing.T) {
	tmp := isolateUserDirs(t)
	writeUserPlugin(t, tmp, "lower.yaml", `
id: lower_mac
name: Lower MAC
match:
  name_contains: ["Lower"]
  mac_prefix: ["aa:bb:cc"]
transport:
  type: rfcomm
  channel: 3
features:
  anc:
    type: enum
    values:
      on: "aa00"
`)
	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"AA:BB:CC"}, loaded.Plugins["lower_mac"].Match.MACPrefix)
}

func TestLoadExtraDirs(t *testing.T) {
	isolateUserDirs(t)

	extra := t.TempDir()
	content := `
id: extra_plugin
name: Extra Plugin
match:
  name_contains: ["Extra"]
  mac_prefix: ["DD:EE:FF"]
transport:
  type: rfcomm
  channel: 4
features:
  anc:
    type: enum
    values:
      on: "aa00"
`
	require.NoError(t, os.WriteFile(filepath.Join(extra, "extra.yaml"), []byte(content), 0o644))

	loaded, err := Load(extra)
	require.NoError(t, err)
	assert.Contains(t, loaded.Plugins, "extra_plugin")
}

func TestLoadIgnoresNonYAMLFiles(t *testing.T) {
	tmp := isolateUserDirs(t)
	dir := filepath.Join(tmp, "cfg", "budsctl", "plugins")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not yaml"), 0o644))

	_, err := Load()
	require.NoError(t, err)
}
