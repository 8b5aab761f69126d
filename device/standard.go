package device

import (
	"encoding/binary"

	"github.com/ardnew/picoreset/pkg"
)

// handleStandard processes a standard SETUP request, writing any IN data
// stage to buf.
func (d *Device) handleStandard(setup *SetupPacket, buf []byte) (int, error) {
	switch setup.Recipient() {
	case RequestRecipientDevice:
		return d.handleDeviceRequest(setup, buf)
	case RequestRecipientInterface:
		return d.handleInterfaceRequest(setup, buf)
	case RequestRecipientEndpoint:
		return d.handleEndpointRequest(setup, buf)
	default:
		return 0, pkg.ErrInvalidRequest
	}
}

// handleDeviceRequest handles device-level standard requests.
func (d *Device) handleDeviceRequest(setup *SetupPacket, buf []byte) (int, error) {
	switch setup.Request {
	case RequestGetStatus:
		return putStatus(buf, uint16(d.GetStatus()))
	case RequestClearFeature:
		if setup.Value != FeatureDeviceRemoteWakeup {
			return 0, pkg.ErrInvalidRequest
		}
		d.EnableRemoteWakeup(false)
		return 0, nil
	case RequestSetFeature:
		if setup.Value != FeatureDeviceRemoteWakeup {
			return 0, pkg.ErrInvalidRequest
		}
		d.EnableRemoteWakeup(true)
		return 0, nil
	case RequestSetAddress:
		return 0, d.SetAddress(uint8(setup.Value & 0x7F))
	case RequestGetDescriptor:
		return d.getDescriptor(setup, buf)
	case RequestGetConfiguration:
		if len(buf) < 1 {
			return 0, pkg.ErrBufferTooSmall
		}
		buf[0] = d.Configuration()
		return 1, nil
	case RequestSetConfiguration:
		return 0, d.SetConfiguration(uint8(setup.Value))
	default:
		return 0, pkg.ErrInvalidRequest
	}
}

// handleInterfaceRequest handles interface-level standard requests.
func (d *Device) handleInterfaceRequest(setup *SetupPacket, buf []byte) (int, error) {
	iface := d.Interface(setup.InterfaceNumber())
	if iface == nil {
		return 0, pkg.ErrInvalidRequest
	}

	switch setup.Request {
	case RequestGetStatus:
		// Interface status is reserved (zero)
		return putStatus(buf, 0)
	case RequestGetInterface:
		if len(buf) < 1 {
			return 0, pkg.ErrBufferTooSmall
		}
		buf[0] = iface.CurrentAltSetting()
		return 1, nil
	case RequestSetInterface:
		if err := iface.setAlternate(uint8(setup.Value)); err != nil {
			return 0, err
		}
		pkg.LogDebug(pkg.ComponentDevice, "alternate setting selected",
			"interface", iface.Number,
			"alt", uint8(setup.Value))
		return 0, nil
	default:
		return 0, pkg.ErrInvalidRequest
	}
}

// handleEndpointRequest handles endpoint-level standard requests. Only the
// control endpoint exists, and it cannot be halted.
func (d *Device) handleEndpointRequest(setup *SetupPacket, buf []byte) (int, error) {
	if setup.EndpointAddress()&0x7F != 0 {
		return 0, pkg.ErrInvalidRequest
	}
	switch setup.Request {
	case RequestGetStatus:
		return putStatus(buf, 0)
	case RequestClearFeature:
		if setup.Value != FeatureEndpointHalt {
			return 0, pkg.ErrInvalidRequest
		}
		return 0, nil
	default:
		return 0, pkg.ErrInvalidRequest
	}
}

// getDescriptor handles GET_DESCRIPTOR request.
func (d *Device) getDescriptor(setup *SetupPacket, buf []byte) (int, error) {
	var scratch [MaxStringDescriptorSize]byte
	var n int

	switch setup.DescriptorType() {
	case DescriptorTypeDevice:
		n = d.Descriptor.MarshalTo(scratch[:])

	case DescriptorTypeConfiguration:
		if setup.DescriptorIndex() != 0 {
			return 0, pkg.ErrInvalidRequest
		}
		return copy(buf, d.ConfigDescriptor()), nil

	case DescriptorTypeString:
		index := StringIndex(setup.DescriptorIndex())
		if index == 0 {
			n = LanguageDescriptorTo(scratch[:], LangIDUSEnglish)
			break
		}
		s, ok := d.lookupString(index, setup.Index)
		if !ok {
			return 0, pkg.ErrInvalidRequest
		}
		n = StringDescriptorTo(scratch[:], s)

	default:
		// Device qualifier and other-speed requests are stalled: full speed only.
		return 0, pkg.ErrInvalidRequest
	}

	if n == 0 {
		return 0, pkg.ErrBufferTooSmall
	}
	return copy(buf, scratch[:n]), nil
}

func putStatus(buf []byte, status uint16) (int, error) {
	if len(buf) < 2 {
		return 0, pkg.ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint16(buf, status)
	return 2, nil
}
