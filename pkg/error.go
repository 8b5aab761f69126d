package pkg

import "errors"

// Control transfer errors.
var (
	// ErrStall indicates the device stalled the control endpoint.
	ErrStall = errors.New("endpoint stalled")

	// ErrNAK indicates a NAK response (device busy).
	ErrNAK = errors.New("NAK received")

	// ErrTimeout indicates a transfer timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrCancelled indicates a cancelled operation.
	ErrCancelled = errors.New("operation cancelled")

	// ErrProtocol indicates a malformed message or unexpected response.
	ErrProtocol = errors.New("protocol error")

	// ErrReset indicates a bus reset was received.
	ErrReset = errors.New("bus reset")

	// ErrRejected indicates the device rejected a recognized interface
	// request (a STALL in answer to a request addressed to it).
	ErrRejected = errors.New("request rejected")
)

// Device stack errors.
var (
	// ErrNotConfigured indicates the device or HAL is not configured.
	ErrNotConfigured = errors.New("not configured")

	// ErrInvalidState indicates an invalid device state for the operation.
	ErrInvalidState = errors.New("invalid device state")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNoMemory indicates a fixed-size table is full.
	ErrNoMemory = errors.New("insufficient memory")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match expected.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrAlreadyRunning indicates the stack is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrAlreadyConfigured indicates a one-shot registration was repeated.
	ErrAlreadyConfigured = errors.New("already configured")
)

// Host-side discovery errors.
var (
	// ErrNoDevice indicates no matching device is present.
	ErrNoDevice = errors.New("device not present")

	// ErrAmbiguous indicates more than one device matched a selector.
	ErrAmbiguous = errors.New("more than one matching device")

	// ErrNoInterface indicates the device exposes no reset interface.
	ErrNoInterface = errors.New("reset interface not found")
)

// ControlStatus is the outcome of the status stage of a control transfer.
type ControlStatus int

// Control status values.
const (
	ControlStatusAck     ControlStatus = iota // Status stage acknowledged
	ControlStatusStall                        // Endpoint stalled
	ControlStatusNAK                          // NAK received
	ControlStatusTimeout                      // No answer in time
	ControlStatusError                        // Anything else
)

// String returns a string representation of the control status.
func (s ControlStatus) String() string {
	switch s {
	case ControlStatusAck:
		return "ack"
	case ControlStatusStall:
		return "stall"
	case ControlStatusNAK:
		return "nak"
	case ControlStatusTimeout:
		return "timeout"
	case ControlStatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the control status.
func (s ControlStatus) Error() error {
	switch s {
	case ControlStatusAck:
		return nil
	case ControlStatusStall:
		return ErrStall
	case ControlStatusNAK:
		return ErrNAK
	case ControlStatusTimeout:
		return ErrTimeout
	default:
		return ErrProtocol
	}
}
