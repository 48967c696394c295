package config

import (
	"fmt"
	"strings"

	serr "shaperd/internal/errors"
	"shaperd/internal/validate"
)

// Preset is a named pair of download/upload bandwidth caps in Mbps.
type Preset struct {
	Name     string `json:"name"`
	DownMbps int    `json:"down_mbps"`
	UpMbps   int    `json:"up_mbps"`
}

// NewPreset validates name and rates and returns the resulting preset.
func NewPreset(name string, downMbps, upMbps int) (Preset, error) {
	if err := validate.PresetName(name); err != nil {
		return Preset{}, err
	}
	if err := validate.Mbps(downMbps); err != nil {
		return Preset{}, err
	}
	if err := validate.Mbps(upMbps); err != nil {
		return Preset{}, err
	}
	return Preset{Name: strings.TrimSpace(name), DownMbps: downMbps, UpMbps: upMbps}, nil
}

// Snapshot is the persisted configuration unit: presets, SSID mappings,
// interface mode and the selected preset. Live session state (enabled,
// temporary deadline) is never part of it.
type Snapshot struct {
	Version        int               `json:"config_version"`
	Presets        []Preset          `json:"presets"`
	Language       string            `json:"language"`
	Interface      string            `json:"iface"`
	InterfaceAuto  bool              `json:"iface_auto"`
	SelectedPreset string            `json:"active_preset"`
	SSIDMappings   map[string]string `json:"wifi_preset_mappings"`
}

// Preset returns the preset with the given name.
func (s Snapshot) Preset(name string) (Preset, bool) {
	for _, p := range s.Presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// Selected returns the currently selected preset, falling back to the first
// preset when the selection is missing.
func (s Snapshot) Selected() Preset {
	if p, ok := s.Preset(s.SelectedPreset); ok {
		return p
	}
	if len(s.Presets) > 0 {
		return s.Presets[0]
	}
	return Preset{}
}

// Clone returns a deep copy safe to hand across goroutines.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Presets = append([]Preset(nil), s.Presets...)
	out.SSIDMappings = make(map[string]string, len(s.SSIDMappings))
	for ssid, preset := range s.SSIDMappings {
		out.SSIDMappings[ssid] = preset
	}
	return out
}

// Validate performs the full schema check: preset rates and names, name
// uniqueness, selected-preset and mapping references, and the manual
// interface name. Import runs this as a single pre-check pass before any
// mutation happens.
func (s Snapshot) Validate() error {
	if len(s.Presets) == 0 {
		return serr.New(
			serr.KindImportValidation,
			fmt.Errorf("snapshot contains no presets"),
			serr.ErrorContext{Operation: "validate_snapshot"},
		)
	}

	seen := make(map[string]struct{}, len(s.Presets))
	for _, p := range s.Presets {
		if _, err := NewPreset(p.Name, p.DownMbps, p.UpMbps); err != nil {
			return serr.Wrap(serr.KindImportValidation, err, "validate_snapshot",
				serr.ErrorContext{Preset: p.Name})
		}
		name := strings.TrimSpace(p.Name)
		if _, dup := seen[name]; dup {
			return serr.New(
				serr.KindImportValidation,
				fmt.Errorf("duplicate preset name %q", name),
				serr.ErrorContext{Operation: "validate_snapshot", Preset: name},
			)
		}
		seen[name] = struct{}{}
	}

	if _, ok := s.Preset(s.SelectedPreset); !ok {
		return serr.New(
			serr.KindImportValidation,
			fmt.Errorf("selected preset %q not present in preset list", s.SelectedPreset),
			serr.ErrorContext{Operation: "validate_snapshot", Preset: s.SelectedPreset},
		)
	}

	for ssid, preset := range s.SSIDMappings {
		if strings.TrimSpace(ssid) == "" {
			return serr.New(
				serr.KindImportValidation,
				fmt.Errorf("empty SSID in mappings"),
				serr.ErrorContext{Operation: "validate_snapshot"},
			)
		}
		if _, ok := s.Preset(preset); !ok {
			return serr.New(
				serr.KindImportValidation,
				fmt.Errorf("mapping for SSID %q references unknown preset %q", ssid, preset),
				serr.ErrorContext{Operation: "validate_snapshot", SSID: ssid, Preset: preset},
			)
		}
	}

	if !s.InterfaceAuto && s.Interface != "" && !validate.InterfaceName(s.Interface) {
		return serr.New(
			serr.KindImportValidation,
			fmt.Errorf("manual interface name %q fails the allow-list", s.Interface),
			serr.ErrorContext{Operation: "validate_snapshot", Interface: s.Interface},
		)
	}

	return nil
}
