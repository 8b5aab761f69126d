package picoreset

// Interface class codes.
const (
	ClassVendorSpecific = 0xFF // Vendor specific class
	SubclassReset       = 0x00 // Reset interface subclass
	ProtocolReset       = 0x01 // Reset interface protocol
)

// Reset interface request codes.
const (
	RequestBootsel = 0x01 // Reboot into the USB bootloader
	RequestFlash   = 0x02 // Reboot into flash; not supported, rejected
)

// Bit fields of wValue in a RequestBootsel request.
const (
	ValueFlagsMask   = 0x007F // Bootloader flags passed through verbatim
	ValuePinOverride = 0x0100 // Bits 9-15 select the activity pin
	ValuePinShift    = 9
	MaxActivityPin   = 0x7F
)

// InterfaceString is the name reported for the interface string descriptor.
const InterfaceString = "Reset"
