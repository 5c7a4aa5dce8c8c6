// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package match scores discovered Bluetooth devices against loaded plugins.
//
// Scoring is layered: a MAC-prefix match is worth more than a name-substring
// match because addresses do not lie while display names are user-editable.
// The exact table is the tie-break policy for target resolution:
//
//	3  MAC prefix and name token both match
//	2  only the MAC prefix matches
//	1  only a name token matches
//	0  neither matches
package match

import (
	"sort"
	"strings"

	"github.com/soothill/budsctl/discovery"
	"github.com/soothill/budsctl/plugin"
)

func macPrefixMatch(deviceMAC string, p *plugin.Plugin) bool {
	upperMAC := strings.ToUpper(deviceMAC)
	for _, prefix := range p.Match.MACPrefix {
		if strings.HasPrefix(upperMAC, prefix) {
			return true
		}
	}
	return false
}

func nameContainsMatch(deviceName string, p *plugin.Plugin) bool {
	lowerName := strings.ToLower(deviceName)
	for _, token := range p.Match.NameContains {
		if strings.Contains(lowerName, strings.ToLower(token)) {
			return true
		}
	}
	return false
}

// Score returns the match score of device against p.
func Score(device discovery.Device, p *plugin.Plugin) int {
	macMatch := macPrefixMatch(device.MAC, p)
	nameMatch := nameContainsMatch(device.Name, p)
	switch {
	case macMatch && nameMatch:
		return 3
	case macMatch:
		return 2
	case nameMatch:
		return 1
	}
	return 0
}

// BestPluginForDevice returns the plugin with the strictly-highest score for
// device, or nil when no plugin scores above zero. Plugins are visited in
// sorted-id order so equal scores resolve to the same winner on every call.
func BestPluginForDevice(device discovery.Device, plugins map[string]*plugin.Plugin) *plugin.Plugin {
	ids := make([]string, 0, len(plugins))
	for id := range plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var best *plugin.Plugin
	bestScore := 0
	for _, id := range ids {
		if score := Score(device, plugins[id]); score > bestScore {
			best = plugins[id]
			bestScore = score
		}
	}
	return best
}
