package picoreset

import (
	"fmt"

	"github.com/ardnew/picoreset/pkg"
)

// Request describes a RequestBootsel transfer from the host side.
type Request struct {
	// ActivityPin overrides the firmware's activity LED; nil keeps it.
	ActivityPin *uint8

	// DisableInterface is sent in the flag bits.
	DisableInterface DisableInterface

	// Flags are additional raw bootloader flag bits (0x00-0x7F).
	Flags uint8
}

// Validate checks that the request fits in wValue.
func (r *Request) Validate() error {
	if r.ActivityPin != nil && *r.ActivityPin > MaxActivityPin {
		return fmt.Errorf("%w: activity pin %d", pkg.ErrInvalidParameter, *r.ActivityPin)
	}
	if r.Flags&^ValueFlagsMask != 0 {
		return fmt.Errorf("%w: flags 0x%02X", pkg.ErrInvalidParameter, r.Flags)
	}
	if r.DisableInterface > DisablePicoBoot {
		return fmt.Errorf("%w: disable interface %d", pkg.ErrInvalidParameter, r.DisableInterface)
	}
	return nil
}

// Value encodes the request as wValue.
func (r *Request) Value() uint16 {
	value := uint16(r.Flags)&ValueFlagsMask | uint16(r.DisableInterface.Mask())
	if r.ActivityPin != nil {
		value |= ValuePinOverride | uint16(*r.ActivityPin&MaxActivityPin)<<ValuePinShift
	}
	return value
}

// ParseValue decodes wValue. Disable-interface bits are reported in Flags.
func ParseValue(value uint16) Request {
	r := Request{Flags: uint8(value & ValueFlagsMask)}
	if value&ValuePinOverride != 0 {
		pin := uint8(value >> ValuePinShift)
		r.ActivityPin = &pin
	}
	return r
}

// String returns a human-readable representation of the request.
func (r *Request) String() string {
	pin := "default"
	if r.ActivityPin != nil {
		pin = fmt.Sprintf("%d", *r.ActivityPin)
	}
	return fmt.Sprintf("BOOTSEL[pin=%s disable=%s flags=0x%02X] wValue=0x%04X",
		pin, r.DisableInterface, r.Flags, r.Value())
}
