package config

import "strings"

// DefaultSnapshot returns the built-in configuration used on first start and
// whenever the on-disk file cannot be read.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Version: Version,
		Presets: []Preset{
			{Name: "Work", DownMbps: 50, UpMbps: 10},
			{Name: "Gaming", DownMbps: 30, UpMbps: 15},
			{Name: "Streaming", DownMbps: 80, UpMbps: 20},
		},
		Language:       "en",
		Interface:      "",
		InterfaceAuto:  true,
		SelectedPreset: "Work",
		SSIDMappings:   map[string]string{},
	}
}

// ApplyDefaults normalises missing or zero values so older or partial files
// load cleanly.
func (s *Snapshot) ApplyDefaults() {
	if s == nil {
		return
	}
	defaults := DefaultSnapshot()

	if len(s.Presets) == 0 {
		s.Presets = defaults.Presets
	}
	if strings.TrimSpace(s.Language) == "" {
		s.Language = defaults.Language
	}
	if strings.TrimSpace(s.SelectedPreset) == "" {
		s.SelectedPreset = defaults.SelectedPreset
	}
	if _, ok := s.Preset(s.SelectedPreset); !ok {
		s.SelectedPreset = s.Presets[0].Name
	}
	if s.SSIDMappings == nil {
		s.SSIDMappings = map[string]string{}
	}
	normalizeMappings(s)
	s.Version = Version
}

// normalizeMappings trims keys and values and drops entries that end up empty.
func normalizeMappings(s *Snapshot) {
	cleaned := make(map[string]string, len(s.SSIDMappings))
	for ssid, preset := range s.SSIDMappings {
		key := strings.TrimSpace(ssid)
		value := strings.TrimSpace(preset)
		if key != "" && value != "" {
			cleaned[key] = value
		}
	}
	s.SSIDMappings = cleaned
}
