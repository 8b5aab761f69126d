// Package picoreset implements the vendor reset interface that lets a host
// tool such as picotool reboot an RP2040 board into its USB bootloader
// without pressing the BOOTSEL button.
//
// # Protocol
//
// The function exposes one interface of class 0xFF (subclass 0x00, protocol
// 0x01 by default) with the string "Reset". It has no endpoints. The host
// sends a class OUT request to the interface:
//
//	bmRequestType 0x21 (Class | Interface)
//	bRequest      0x01 (RequestBootsel)
//	wValue        bits 0-6  bootloader flags
//	              bit 8     override activity pin
//	              bits 9-15 activity pin
//	wIndex        interface number
//	wLength       0
//
// The device never completes the transfer: it jumps to the mask-ROM
// bootloader and drops off the bus. Any other request code addressed to
// the interface is stalled. Requests for other interfaces are left to the
// other handlers.
//
// # Usage
//
//	var state picoreset.State
//
//	b := device.NewBuilder(device.DefaultDeviceConfig())
//	picoreset.Configure(b, &state, picoreset.DefaultConfig())
//	dev, err := b.Build()
//
// The State must outlive the device; the builder keeps a pointer into it.
package picoreset
