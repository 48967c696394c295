// Package validate holds the pure input checks every component runs before a
// rate or identifier is allowed anywhere near the privileged gateway.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	serr "shaperd/internal/errors"
)

const (
	// MinMbps and MaxMbps bound bandwidth values accepted for presets.
	MinMbps = 1
	MaxMbps = 10000

	// MaxPresetNameLen keeps preset names reasonable for menus and logs.
	MaxPresetNameLen = 64
)

// Kernel network device names: alphanumerics plus underscore, dot, colon and
// hyphen, bounded length. Anything else never reaches a privileged call.
var interfaceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,32}$`)

// Mbps rejects bandwidth values outside [MinMbps, MaxMbps].
func Mbps(value int) error {
	if value < MinMbps || value > MaxMbps {
		return serr.Validation(
			fmt.Errorf("rate %d out of range [%d, %d] Mbps", value, MinMbps, MaxMbps),
			"validate_mbps",
			serr.ErrorContext{Value: fmt.Sprintf("%d", value)},
		)
	}
	return nil
}

// InterfaceName reports whether name matches the device-name allow-list.
func InterfaceName(name string) bool {
	return interfaceNamePattern.MatchString(name)
}

// PresetName rejects empty or oversized preset names.
func PresetName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return serr.Validation(
			fmt.Errorf("preset name must not be empty"),
			"validate_preset_name",
		)
	}
	if len(trimmed) > MaxPresetNameLen {
		return serr.Validation(
			fmt.Errorf("preset name exceeds %d characters", MaxPresetNameLen),
			"validate_preset_name",
			serr.ErrorContext{Value: trimmed},
		)
	}
	return nil
}

// TemporaryMinutes rejects zero or negative temporary-session durations.
// Whole minutes only; the controller runs this before the timer ever starts.
func TemporaryMinutes(minutes int) error {
	if minutes <= 0 {
		return serr.Validation(
			fmt.Errorf("temporary duration must be a positive number of minutes, got %d", minutes),
			"validate_duration",
			serr.ErrorContext{Value: fmt.Sprintf("%d", minutes)},
		)
	}
	return nil
}
