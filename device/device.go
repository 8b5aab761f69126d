package device

import (
	"sync"

	"github.com/ardnew/picoreset/pkg"
)

// Device is a USB device with a single configuration, assembled by a
// Builder. It answers the standard requests itself and offers everything
// else to the registered handlers.
type Device struct {
	// Device descriptor
	Descriptor DeviceDescriptor

	// Full configuration descriptor, prebuilt by the Builder
	configDesc [MaxConfigDescriptorSize]byte
	configLen  int
	attributes uint8

	// Functions, interfaces and handlers - fixed-size arrays for zero allocation
	functions      [MaxFunctions]Function
	functionCount  int
	interfaces     [MaxInterfaces]Interface
	interfaceCount int
	handlers       [MaxHandlers]Handler
	handlerCount   int

	// Manufacturer, product and serial strings
	strings [FirstDynamicString]string

	// Device state
	state               State
	previousState       State
	address             uint8
	configuration       uint8
	remoteWakeupEnabled bool

	mutex sync.RWMutex

	// Event callbacks
	onStateChange      func(old, new State)
	onSetConfiguration func(value uint8)
}

func newDevice() *Device {
	return &Device{state: StateAttached}
}

// ConfigDescriptor returns the full configuration descriptor.
// The returned slice must not be modified.
func (d *Device) ConfigDescriptor() []byte {
	return d.configDesc[:d.configLen]
}

// NumInterfaces returns the number of interfaces in the configuration.
func (d *Device) NumInterfaces() int {
	return d.interfaceCount
}

// Interface returns interface n, or nil if it does not exist.
func (d *Device) Interface(n InterfaceNumber) *Interface {
	if int(n) >= d.interfaceCount {
		return nil
	}
	return &d.interfaces[n]
}

// NumFunctions returns the number of functions.
func (d *Device) NumFunctions() int {
	return d.functionCount
}

// Function returns function n, or nil if it does not exist.
func (d *Device) Function(n int) *Function {
	if n < 0 || n >= d.functionCount {
		return nil
	}
	return &d.functions[n]
}

// State returns the current device state.
func (d *Device) State() State {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.state
}

// setState changes the device state and triggers callback.
func (d *Device) setState(newState State) {
	d.mutex.Lock()
	oldState := d.state
	d.state = newState
	callback := d.onStateChange
	d.mutex.Unlock()

	if oldState != newState {
		pkg.LogDebug(pkg.ComponentDevice, "device state changed",
			"from", oldState.String(),
			"to", newState.String())
		if callback != nil {
			callback(oldState, newState)
		}
	}
}

// Address returns the device address.
func (d *Device) Address() uint8 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.address
}

// Configuration returns the active configuration value, 0 if unconfigured.
func (d *Device) Configuration() uint8 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.configuration
}

// IsConfigured returns true if the device is configured.
func (d *Device) IsConfigured() bool {
	return d.State() == StateConfigured
}

// IsSuspended returns true if the device is suspended.
func (d *Device) IsSuspended() bool {
	return d.State() == StateSuspended
}

// Reset handles a bus reset.
func (d *Device) Reset() {
	d.mutex.Lock()
	d.address = 0
	d.configuration = 0
	d.remoteWakeupEnabled = false
	d.mutex.Unlock()

	for idx := 0; idx < d.interfaceCount; idx++ {
		d.interfaces[idx].setAlternate(0)
	}

	d.setState(StateDefault)
	pkg.LogDebug(pkg.ComponentDevice, "device reset")
}

// SetAddress handles SET_ADDRESS request.
func (d *Device) SetAddress(address uint8) error {
	d.mutex.Lock()
	if d.state != StateDefault && d.state != StateAddress {
		d.mutex.Unlock()
		return pkg.ErrInvalidState
	}
	d.address = address
	d.mutex.Unlock()

	if address == 0 {
		d.setState(StateDefault)
	} else {
		d.setState(StateAddress)
	}

	pkg.LogDebug(pkg.ComponentDevice, "device address set",
		"address", address)
	return nil
}

// SetConfiguration handles SET_CONFIGURATION request.
func (d *Device) SetConfiguration(value uint8) error {
	d.mutex.Lock()
	if d.state != StateAddress && d.state != StateConfigured {
		d.mutex.Unlock()
		return pkg.ErrInvalidState
	}
	if value != 0 && value != ConfigurationValue {
		d.mutex.Unlock()
		return pkg.ErrInvalidRequest
	}
	d.configuration = value
	callback := d.onSetConfiguration
	d.mutex.Unlock()

	if value == 0 {
		d.setState(StateAddress)
		return nil
	}

	d.setState(StateConfigured)
	if callback != nil {
		callback(value)
	}

	pkg.LogDebug(pkg.ComponentDevice, "device configured",
		"configuration", value)
	return nil
}

// Suspend handles USB suspend.
func (d *Device) Suspend() {
	d.mutex.Lock()
	if d.state == StateSuspended {
		d.mutex.Unlock()
		return
	}
	d.previousState = d.state
	d.mutex.Unlock()

	d.setState(StateSuspended)
	pkg.LogDebug(pkg.ComponentDevice, "device suspended")
}

// Resume handles USB resume.
func (d *Device) Resume() {
	d.mutex.RLock()
	previousState := d.previousState
	d.mutex.RUnlock()

	if previousState != StateAttached && previousState != StatePowered {
		d.setState(previousState)
	} else {
		d.setState(StateDefault)
	}
	pkg.LogDebug(pkg.ComponentDevice, "device resumed")
}

// EnableRemoteWakeup enables remote wakeup capability.
func (d *Device) EnableRemoteWakeup(enabled bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.remoteWakeupEnabled = enabled
}

// IsRemoteWakeupEnabled returns true if remote wakeup is enabled.
func (d *Device) IsRemoteWakeupEnabled() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.remoteWakeupEnabled
}

// DeviceStatus represents the device status bits.
type DeviceStatus uint16

// Device status bits.
const (
	DeviceStatusSelfPowered  DeviceStatus = 1 << 0 // Device is self-powered
	DeviceStatusRemoteWakeup DeviceStatus = 1 << 1 // Remote wakeup enabled
)

// GetStatus returns the device status.
func (d *Device) GetStatus() DeviceStatus {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var status DeviceStatus
	if d.attributes&ConfigAttrSelfPowered != 0 {
		status |= DeviceStatusSelfPowered
	}
	if d.remoteWakeupEnabled {
		status |= DeviceStatusRemoteWakeup
	}
	return status
}

// SetOnStateChange sets the state change callback.
func (d *Device) SetOnStateChange(cb func(old, new State)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onStateChange = cb
}

// SetOnSetConfiguration sets the set configuration callback.
func (d *Device) SetOnSetConfiguration(cb func(value uint8)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onSetConfiguration = cb
}

// HandleSetup processes one control transfer. For OUT requests data holds
// the received data stage; for IN requests the data stage is written to buf
// and its length returned. A non-nil error means the transfer must be
// stalled.
func (d *Device) HandleSetup(setup *SetupPacket, data, buf []byte) (int, error) {
	if setup.IsDeviceToHost() && int(setup.Length) < len(buf) {
		buf = buf[:setup.Length]
	}

	if setup.IsStandard() {
		n, err := d.handleStandard(setup, buf)
		if err == nil || setup.Recipient() != RequestRecipientInterface {
			return n, err
		}
		// Interface-directed standard requests the device does not know
		// may belong to a class driver.
	}
	return d.dispatch(setup, data, buf)
}

// dispatch offers a request to each handler in registration order.
func (d *Device) dispatch(setup *SetupPacket, data, buf []byte) (int, error) {
	for idx := 0; idx < d.handlerCount; idx++ {
		h := d.handlers[idx]
		if setup.IsDeviceToHost() {
			n, resp, ok := h.ControlIn(setup, buf)
			if !ok {
				continue
			}
			if resp != ResponseAccepted {
				return 0, pkg.ErrStall
			}
			if n > len(buf) {
				n = len(buf)
			}
			return n, nil
		}
		resp, ok := h.ControlOut(setup, data)
		if !ok {
			continue
		}
		if resp != ResponseAccepted {
			return 0, pkg.ErrStall
		}
		return 0, nil
	}

	pkg.LogDebug(pkg.ComponentDevice, "request not claimed",
		"request", setup.String())
	return 0, pkg.ErrInvalidRequest
}

// lookupString resolves the text of a string descriptor index.
func (d *Device) lookupString(index StringIndex, langID uint16) (string, bool) {
	if index > 0 && index < FirstDynamicString {
		s := d.strings[index]
		return s, s != ""
	}
	for idx := 0; idx < d.handlerCount; idx++ {
		if s, ok := d.handlers[idx].GetString(index, langID); ok {
			return s, true
		}
	}
	return "", false
}
