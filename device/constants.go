package device

import "fmt"

// Maximum limits for fixed-size tables (zero-allocation support).
const (
	// MaxFunctions is the maximum number of functions per device.
	MaxFunctions = 4

	// MaxInterfaces is the maximum number of interfaces in the configuration.
	MaxInterfaces = 8

	// MaxAltSettings is the maximum number of alternate settings per interface.
	MaxAltSettings = 4

	// MaxHandlers is the maximum number of registered request handlers.
	MaxHandlers = 8

	// MaxStrings is the maximum number of string descriptor indices.
	MaxStrings = 16

	// MaxConfigDescriptorSize bounds the full configuration descriptor.
	MaxConfigDescriptorSize = 256

	// MaxControlDataSize is the maximum data stage handled on EP0.
	MaxControlDataSize = 256
)

// Reserved string indices. Index 0 holds the language table; 1-3 belong to
// the device descriptor strings. Builder.String hands out indices from
// FirstDynamicString upwards.
const (
	StringIndexManufacturer StringIndex = 1
	StringIndexProduct      StringIndex = 2
	StringIndexSerial       StringIndex = 3
	FirstDynamicString      StringIndex = 4
)

// ConfigurationValue is the bConfigurationValue of the single configuration.
const ConfigurationValue = 1

// Device states as defined in USB 2.0 specification section 9.1.
const (
	StateAttached   State = 0 // Device is attached but not powered
	StatePowered    State = 1 // Device is powered
	StateDefault    State = 2 // Device has been reset, using default address
	StateAddress    State = 3 // Device has been assigned a unique address
	StateConfigured State = 4 // Device is configured and operational
	StateSuspended  State = 5 // Device is in suspend mode
)

// State represents USB device state.
type State uint8

// String returns a human-readable state description.
func (s State) String() string {
	switch s {
	case StateAttached:
		return "Attached"
	case StatePowered:
		return "Powered"
	case StateDefault:
		return "Default"
	case StateAddress:
		return "Address"
	case StateConfigured:
		return "Configured"
	case StateSuspended:
		return "Suspended"
	default:
		return fmt.Sprintf("Unknown State (%d)", s)
	}
}
