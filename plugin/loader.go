// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package plugin

import (
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	errs "github.com/soothill/budsctl/pkg/errors"
	"github.com/soothill/budsctl/pkg/logger"
	"github.com/soothill/budsctl/pkg/metrics"
)

//go:embed schema.json
var schemaJSON []byte

//go:embed bundled/*.yaml
var bundledFS embed.FS

const maxPayloadBytes = 512

const (
	defaultRFCOMMTimeout = 3 * time.Second
	defaultBLETimeout    = 5 * time.Second
)

var (
	hexRE  = regexp.MustCompile(`^[0-9a-f]+$`)
	uuidRE = regexp.MustCompile(`^[0-9a-f]{4}$|^[0-9a-f]{8}$|^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// Load enumerates plugin documents from the bundled set and the user plugin
// directories (plus any extraDirs), validates each, and merges them into one
// id-keyed set. Bundled documents are processed first in filename order;
// user documents follow in path-sorted order and replace bundled plugins
// with the same id, producing a warning rather than an error.
//
// The first invalid document aborts the whole load. There is no per-file
// isolation: a broken user plugin makes the load fail loudly instead of
// silently shrinking the plugin set.
func Load(extraDirs ...string) (*Loaded, error) {
	plugins := make(map[string]*Plugin)
	var warnings []string

	bundled, err := bundledDocuments()
	if err != nil {
		return nil, err
	}
	for _, doc := range bundled {
		p, err := buildPlugin(doc.data, doc.source)
		if err != nil {
			metrics.PluginValidationFailures.Inc()
			return nil, err
		}
		plugins[p.ID] = p
	}

	dirs := append(userPluginDirs(), extraDirs...)
	for _, dir := range dirs {
		paths, err := pluginFilesIn(dir)
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, errs.NewPluginLoadError(path, err)
			}
			p, err := buildPlugin(data, path)
			if err != nil {
				metrics.PluginValidationFailures.Inc()
				return nil, err
			}
			if _, exists := plugins[p.ID]; exists {
				warning := fmt.Sprintf("user plugin '%s' overrides packaged plugin", p.ID)
				logger.Warn().Str("plugin_id", p.ID).Str("path", path).Msg(warning)
				metrics.PluginOverrides.Inc()
				warnings = append(warnings, warning)
			}
			plugins[p.ID] = p
		}
	}

	metrics.PluginsLoaded.Set(float64(len(plugins)))
	logger.Debug().Int("plugins", len(plugins)).Int("warnings", len(warnings)).Msg("Plugin load complete")

	return &Loaded{Plugins: plugins, Warnings: warnings}, nil
}

type bundledDocument struct {
	source string
	data   []byte
}

// bundledDocuments returns the embedded plugin documents in filename order.
func bundledDocuments() ([]bundledDocument, error) {
	entries, err := fs.ReadDir(bundledFS, "bundled")
	if err != nil {
		return nil, errs.NewPluginLoadError("bundled", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	docs := make([]bundledDocument, 0, len(names))
	for _, name := range names {
		data, err := bundledFS.ReadFile("bundled/" + name)
		if err != nil {
			return nil, errs.NewPluginLoadError("bundled/"+name, err)
		}
		docs = append(docs, bundledDocument{source: "bundled/" + name, data: data})
	}
	return docs, nil
}

// userPluginDirs resolves the user plugin directories from the XDG
// conventions: $XDG_CONFIG_HOME/budsctl/plugins and
// $XDG_DATA_HOME/budsctl/plugins.
func userPluginDirs() []string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configHome = filepath.Join(home, ".config")
		}
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dataHome = filepath.Join(home, ".local", "share")
		}
	}

	var dirs []string
	if configHome != "" {
		dirs = append(dirs, filepath.Join(configHome, "budsctl", "plugins"))
	}
	if dataHome != "" {
		dirs = append(dirs, filepath.Join(dataHome, "budsctl", "plugins"))
	}
	return dirs
}

// pluginFilesIn returns the YAML plugin files in dir, path-sorted. A missing
// directory is not an error, just an empty result.
func pluginFilesIn(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewPluginLoadError(dir, err)
	}
	if !info.IsDir() {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.NewPluginLoadError(dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// buildPlugin parses, schema-validates, and semantically normalizes one
// plugin document.
func buildPlugin(data []byte, source string) (*Plugin, error) {
	doc, err := decodeDocument(data, source)
	if err != nil {
		return nil, err
	}
	if err := validateSchema(doc, source); err != nil {
		return nil, err
	}

	id := doc["id"].(string)
	name := doc["name"].(string)

	match := buildMatchRules(doc["match"].(map[string]interface{}))

	transport, err := buildTransport(doc["transport"].(map[string]interface{}), id, source)
	if err != nil {
		return nil, err
	}

	features := make(map[string]Feature)
	for featureName, raw := range doc["features"].(map[string]interface{}) {
		spec := raw.(map[string]interface{})
		values := make(map[string][]byte)
		for valueName, hexRaw := range spec["values"].(map[string]interface{}) {
			context := fmt.Sprintf("%s.%s.%s", id, featureName, valueName)
			payload, err := normalizeHex(hexRaw.(string), context, source)
			if err != nil {
				return nil, err
			}
			values[valueName] = payload
		}
		features[featureName] = Feature{Values: values}
	}

	return &Plugin{
		ID:        id,
		Name:      name,
		Match:     match,
		Transport: transport,
		Features:  features,
	}, nil
}

// validateSchema checks the generic document against the embedded JSON
// schema, naming the offending path and source on failure.
func validateSchema(doc map[string]interface{}, source string) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errs.NewPluginValidationError(source, "", fmt.Sprintf("document not representable as JSON: %v", err))
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(docJSON),
	)
	if err != nil {
		return errs.NewPluginValidationError(source, "", fmt.Sprintf("schema validation failed: %v", err))
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return errs.NewPluginValidationError(source, first.Field(), first.Description())
	}
	return nil
}

func buildMatchRules(raw map[string]interface{}) MatchRules {
	rules := MatchRules{}
	if tokens, ok := raw["name_contains"].([]interface{}); ok {
		for _, t := range tokens {
			rules.NameContains = append(rules.NameContains, t.(string))
		}
	}
	if prefixes, ok := raw["mac_prefix"].([]interface{}); ok {
		for _, p := range prefixes {
			rules.MACPrefix = append(rules.MACPrefix, strings.ToUpper(strings.TrimSpace(p.(string))))
		}
	}
	return rules
}

func buildTransport(raw map[string]interface{}, id, source string) (TransportSpec, error) {
	transportType := raw["type"].(string)

	switch transportType {
	case "rfcomm":
		channel, ok := raw["channel"].(int64)
		if !ok {
			return nil, errs.NewPluginValidationError(source, id+".transport.channel",
				"channel is required for rfcomm transport")
		}
		timeout, err := timeoutSeconds(raw["timeout_s"], defaultRFCOMMTimeout)
		if err != nil {
			return nil, errs.NewPluginValidationError(source, id+".transport.timeout_s", err.Error())
		}
		return RFCOMM{Channel: int(channel), Timeout: timeout}, nil

	case "ble":
		serviceUUID, err := normalizeUUID(raw["service_uuid"], id+".transport.service_uuid", source)
		if err != nil {
			return nil, err
		}
		writeUUID, err := normalizeUUID(raw["write_char_uuid"], id+".transport.write_char_uuid", source)
		if err != nil {
			return nil, err
		}
		notifyUUID := ""
		if _, present := raw["notify_char_uuid"]; present {
			notifyUUID, err = normalizeUUID(raw["notify_char_uuid"], id+".transport.notify_char_uuid", source)
			if err != nil {
				return nil, err
			}
		}
		withResponse := true
		if rawBool, present := raw["write_with_response"]; present {
			withResponse, err = normalizeBool(rawBool)
			if err != nil {
				return nil, errs.NewPluginValidationError(source, id+".transport.write_with_response", err.Error())
			}
		}
		timeout, err := timeoutSeconds(raw["timeout_s"], defaultBLETimeout)
		if err != nil {
			return nil, errs.NewPluginValidationError(source, id+".transport.timeout_s", err.Error())
		}
		return BLE{
			ServiceUUID:       serviceUUID,
			WriteCharUUID:     writeUUID,
			NotifyCharUUID:    notifyUUID,
			WriteWithResponse: withResponse,
			Timeout:           timeout,
		}, nil
	}

	return nil, errs.NewPluginValidationError(source, id+".transport.type",
		fmt.Sprintf("unsupported transport type '%s'", transportType))
}

// normalizeHex lowercases and space-strips a hex payload string, then
// decodes it, enforcing the 1-512 byte size invariant.
func normalizeHex(value, context, source string) ([]byte, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), " ", "")
	if len(normalized) == 0 {
		return nil, errs.NewPluginValidationError(source, context, "payload must not be empty")
	}
	if len(normalized)%2 != 0 {
		return nil, errs.NewPluginValidationError(source, context, "payload must have even-length hex")
	}
	if !hexRE.MatchString(normalized) {
		return nil, errs.NewPluginValidationError(source, context, "payload must contain only [0-9a-f]")
	}
	payload, err := hex.DecodeString(normalized)
	if err != nil {
		return nil, errs.NewPluginValidationError(source, context, fmt.Sprintf("payload is not valid hex: %v", err))
	}
	if len(payload) > maxPayloadBytes {
		return nil, errs.NewPluginValidationError(source, context,
			fmt.Sprintf("payload exceeds max size of %d bytes", maxPayloadBytes))
	}
	return payload, nil
}

// normalizeUUID accepts 16-bit (4 hex chars), 32-bit (8 hex chars), or full
// dashed 128-bit forms and returns the lowercase normalization.
func normalizeUUID(raw interface{}, context, source string) (string, error) {
	value, ok := raw.(string)
	if !ok {
		return "", errs.NewPluginValidationError(source, context, "UUID is required")
	}
	normalized := strings.ToLower(strings.TrimSpace(value))
	if !uuidRE.MatchString(normalized) {
		return "", errs.NewPluginValidationError(source, context,
			"must be a 16-bit, 32-bit, or 128-bit UUID string")
	}
	return normalized, nil
}

// normalizeBool accepts a real boolean or the literal strings "true" and
// "false" (case-insensitive).
func normalizeBool(raw interface{}) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("must be boolean true/false")
}

// timeoutSeconds converts the optional timeout_s field (number or numeric
// string, in seconds) into a duration.
func timeoutSeconds(raw interface{}, fallback time.Duration) (time.Duration, error) {
	if raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("timeout_s is not a number: %v", err)
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("timeout_s is not a number")
}
