package picoreset

import (
	"fmt"
	"strings"

	"github.com/ardnew/picoreset/device"
	"github.com/ardnew/picoreset/pkg"
	"github.com/ardnew/picoreset/rom"
)

// DisableInterface selects the bootloader interfaces turned off after the
// reset. The zero value keeps both enabled.
type DisableInterface uint8

// Bootloader interface policies.
const (
	DisableNone        DisableInterface = iota // Mass storage and PicoBoot enabled
	DisableMassStorage                         // PicoBoot only
	DisablePicoBoot                            // Mass storage only
)

// Mask returns the disable-interface bits passed to the bootloader.
func (d DisableInterface) Mask() uint32 {
	switch d {
	case DisableMassStorage:
		return rom.DisableMassStorage
	case DisablePicoBoot:
		return rom.DisablePicoBoot
	default:
		return 0
	}
}

// String returns the configuration name of the policy.
func (d DisableInterface) String() string {
	switch d {
	case DisableNone:
		return "none"
	case DisableMassStorage:
		return "mass-storage"
	case DisablePicoBoot:
		return "picoboot"
	default:
		return fmt.Sprintf("DisableInterface(%d)", uint8(d))
	}
}

// ParseDisableInterface converts a configuration name into a policy.
func ParseDisableInterface(name string) (DisableInterface, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return DisableNone, nil
	case "mass-storage", "msc":
		return DisableMassStorage, nil
	case "picoboot":
		return DisablePicoBoot, nil
	}
	return DisableNone, fmt.Errorf("%w: disable interface %q", pkg.ErrInvalidParameter, name)
}

// Config customizes the reset interface.
type Config struct {
	// DisableInterface is ORed into the flags of every reset.
	DisableInterface DisableInterface

	// ActivityLED is the default bootloader activity pin, nil for none.
	ActivityLED *uint8

	// SubClass and Protocol of the function and its interface.
	SubClass uint8
	Protocol uint8

	// StrictLength rejects reset requests that carry a data stage.
	StrictLength bool
}

// DefaultConfig keeps both bootloader interfaces and shows no activity LED.
func DefaultConfig() Config {
	return Config{
		DisableInterface: DisableNone,
		SubClass:         SubclassReset,
		Protocol:         ProtocolReset,
	}
}

// LED returns a pointer to pin for use as Config.ActivityLED.
func LED(pin uint8) *uint8 {
	return &pin
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DisableInterface > DisablePicoBoot {
		return fmt.Errorf("%w: disable interface %d", pkg.ErrInvalidParameter, c.DisableInterface)
	}
	if c.ActivityLED != nil && *c.ActivityLED >= 32 {
		return fmt.Errorf("%w: activity pin %d", pkg.ErrInvalidParameter, *c.ActivityLED)
	}
	return nil
}

// ResetArgs computes the arguments of the bootloader reset for a
// RequestBootsel wValue. The pin override in value takes precedence over
// cfg.ActivityLED; the flag bits of value are combined with the configured
// disable-interface mask.
//
// Pins of 32 and above yield an empty mask.
func ResetArgs(value uint16, cfg Config) (gpioMask, flags uint32) {
	if cfg.ActivityLED != nil {
		gpioMask = 1 << *cfg.ActivityLED
	}
	if value&ValuePinOverride != 0 {
		gpioMask = 1 << (value >> ValuePinShift)
	}
	flags = uint32(value&ValueFlagsMask) | cfg.DisableInterface.Mask()
	return gpioMask, flags
}

// State holds the reset interface handler. It is allocated by the caller,
// must outlive the device it is configured on, and is configured once.
type State struct {
	control    Control
	reset      rom.ResetFunc
	configured bool
}

// NewState creates a State that reboots through reset. The zero State
// uses rom.ResetToUSBBoot.
func NewState(reset rom.ResetFunc) *State {
	return &State{reset: reset}
}

// Control returns the handler, or nil before Configure.
func (s *State) Control() *Control {
	if !s.configured {
		return nil
	}
	return &s.control
}

// Control is the request handler of a configured reset interface.
type Control struct {
	device.BaseHandler

	iface  device.InterfaceNumber
	str    device.StringIndex
	config Config
	reset  rom.ResetFunc
}

// Configure registers the reset function, its single interface and the
// interface string on b, and installs the handler held in s.
//
// Configure panics if s has already been configured.
func Configure(b *device.Builder, s *State, cfg Config) {
	if s.configured {
		panic(fmt.Errorf("picoreset: %w", pkg.ErrAlreadyConfigured))
	}

	str := b.AllocString()
	fn := b.Function(ClassVendorSpecific, cfg.SubClass, cfg.Protocol)
	iface := fn.Interface()
	iface.AltSetting(ClassVendorSpecific, cfg.SubClass, cfg.Protocol, str)

	reset := s.reset
	if reset == nil {
		reset = rom.ResetToUSBBoot
	}
	s.control = Control{
		iface:  iface.Number(),
		str:    str,
		config: cfg,
		reset:  reset,
	}
	s.configured = true

	b.Handler(&s.control)

	pkg.LogDebug(pkg.ComponentReset, "reset interface configured",
		"interface", s.control.iface,
		"string", s.control.str,
		"disable", cfg.DisableInterface.String())
}

// Interface returns the interface number assigned at configuration.
func (c *Control) Interface() device.InterfaceNumber {
	return c.iface
}

// StringIndex returns the interface string index.
func (c *Control) StringIndex() device.StringIndex {
	return c.str
}

// GetString implements device.Handler.
func (c *Control) GetString(index device.StringIndex, _ uint16) (string, bool) {
	if index != c.str {
		return "", false
	}
	return InterfaceString, true
}

// ControlOut implements device.Handler. A RequestBootsel request addressed
// to the interface does not return.
func (c *Control) ControlOut(setup *device.SetupPacket, data []byte) (device.Response, bool) {
	if !c.addressed(setup) {
		return device.ResponseRejected, false
	}

	switch setup.Request {
	case RequestBootsel:
		if c.config.StrictLength && (setup.Length != 0 || len(data) != 0) {
			pkg.LogWarn(pkg.ComponentReset, "reset request with data stage",
				"length", setup.Length)
			return device.ResponseRejected, true
		}
		gpioMask, flags := ResetArgs(setup.Value, c.config)
		pkg.LogInfo(pkg.ComponentReset, "resetting to USB boot",
			"gpioMask", gpioMask,
			"flags", flags)
		c.reset(gpioMask, flags)
		panic("picoreset: reset to USB boot returned")

	default:
		pkg.LogWarn(pkg.ComponentReset, "reset request not implemented",
			"request", setup.Request)
		return device.ResponseRejected, true
	}
}

// addressed reports whether setup is a class request for this interface.
func (c *Control) addressed(setup *device.SetupPacket) bool {
	return setup.IsClass() &&
		setup.IsInterfaceRecipient() &&
		setup.Index == uint16(c.iface)
}

var _ device.Handler = (*Control)(nil)
