package hal

import (
	"context"
	"encoding/binary"
)

// SetupPacket is a SETUP packet as delivered by the controller.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes in the data stage
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket decodes raw bytes into out.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = binary.LittleEndian.Uint16(data[2:])
	out.Index = binary.LittleEndian.Uint16(data[4:])
	out.Length = binary.LittleEndian.Uint16(data[6:])
	return true
}

// DeviceHAL is the controller interface the device stack drives. The reset
// interface only uses the control endpoint, so no data endpoints are
// exposed.
//
// Implementations must tolerate ReadSetup running on one goroutine while
// Stop is called from another.
type DeviceHAL interface {
	// Init prepares the controller. The context can cancel initialization.
	Init(ctx context.Context) error

	// Start attaches to the bus. After Start returns the host can see the
	// device.
	Start() error

	// Stop detaches from the bus and releases the controller.
	Stop() error

	// SetAddress programs the address assigned by the host. Called after
	// the status stage of SET_ADDRESS.
	SetAddress(address uint8) error

	// ReadSetup blocks until a SETUP packet arrives. It returns
	// pkg.ErrReset when the host resets the bus instead.
	ReadSetup(ctx context.Context, out *SetupPacket) error

	// ReadEP0 reads the OUT data stage of the current control transfer into
	// buf and returns the number of bytes received.
	ReadEP0(ctx context.Context, buf []byte) (int, error)

	// WriteEP0 sends the IN data stage of the current control transfer.
	WriteEP0(ctx context.Context, data []byte) error

	// AckEP0 completes an OUT control transfer with a zero-length status.
	AckEP0() error

	// StallEP0 fails the current control transfer.
	StallEP0() error

	// IsConnected returns true if the device is attached to a host.
	IsConnected() bool

	// WaitConnect blocks until the device is attached or the context is
	// cancelled.
	WaitConnect(ctx context.Context) error
}
