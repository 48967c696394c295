package errors

const (
	contextKeyOperation = "operation"
	contextKeyInterface = "interface"
	contextKeyPreset    = "preset"
	contextKeySSID      = "ssid"
	contextKeyCommand   = "command"
	contextKeyPath      = "path"
	contextKeyValue     = "value"
	contextKeyOutput    = "output"
)

// ErrorContext captures structured metadata for classified errors.
type ErrorContext struct {
	Operation string
	Interface string
	Preset    string
	SSID      string
	Command   string
	Path      string
	Value     string
	Output    string
	Extra     map[string]any
}

// Merge returns a new ErrorContext combining the receiver with the provided context.
// Non-empty fields from the other context override existing values. Extra maps are merged.
func (ec ErrorContext) Merge(other ErrorContext) ErrorContext {
	result := ec

	if other.Operation != "" {
		result.Operation = other.Operation
	}
	if other.Interface != "" {
		result.Interface = other.Interface
	}
	if other.Preset != "" {
		result.Preset = other.Preset
	}
	if other.SSID != "" {
		result.SSID = other.SSID
	}
	if other.Command != "" {
		result.Command = other.Command
	}
	if other.Path != "" {
		result.Path = other.Path
	}
	if other.Value != "" {
		result.Value = other.Value
	}
	if other.Output != "" {
		result.Output = other.Output
	}

	if len(other.Extra) > 0 {
		if result.Extra == nil {
			result.Extra = make(map[string]any, len(other.Extra))
		}
		for k, v := range other.Extra {
			result.Extra[k] = v
		}
	}

	return result
}

// ToMap converts the context into a map for logging compatibility.
func (ec ErrorContext) ToMap() map[string]any {
	result := make(map[string]any)

	if ec.Operation != "" {
		result[contextKeyOperation] = ec.Operation
	}
	if ec.Interface != "" {
		result[contextKeyInterface] = ec.Interface
	}
	if ec.Preset != "" {
		result[contextKeyPreset] = ec.Preset
	}
	if ec.SSID != "" {
		result[contextKeySSID] = ec.SSID
	}
	if ec.Command != "" {
		result[contextKeyCommand] = ec.Command
	}
	if ec.Path != "" {
		result[contextKeyPath] = ec.Path
	}
	if ec.Value != "" {
		result[contextKeyValue] = ec.Value
	}
	if ec.Output != "" {
		result[contextKeyOutput] = ec.Output
	}

	for k, v := range ec.Extra {
		result[k] = v
	}

	return result
}
