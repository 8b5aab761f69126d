package device

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/ardnew/picoreset/pkg"
)

// setupAddressedDevice returns a device in the Address state with a string
// handler for index 4.
func setupAddressedDevice(t *testing.T) *Device {
	t.Helper()
	b := NewBuilder(DefaultDeviceConfig())
	str := b.AllocString()
	iface := b.Function(ClassVendor, 0x00, 0x01).Interface()
	iface.AltSetting(ClassVendor, 0x00, 0x01, str)
	iface.AltSetting(ClassVendor, 0x00, 0x02, str)
	b.Handler(&stringHandler{index: str, text: "Reset"})
	dev, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	dev.Reset()
	if err := dev.SetAddress(5); err != nil {
		t.Fatalf("SetAddress() error = %v", err)
	}
	return dev
}

func inSetup(recipient, request uint8, value, index, length uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionDeviceToHost | RequestTypeStandard | recipient,
		Request:     request,
		Value:       value,
		Index:       index,
		Length:      length,
	}
}

func outSetup(recipient, request uint8, value, index uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionHostToDevice | RequestTypeStandard | recipient,
		Request:     request,
		Value:       value,
		Index:       index,
	}
}

func TestHandleGetDeviceStatus(t *testing.T) {
	dev := setupAddressedDevice(t)
	setup := inSetup(RequestRecipientDevice, RequestGetStatus, 0, 0, 2)

	var buf [8]byte
	n, err := dev.HandleSetup(&setup, nil, buf[:])
	if err != nil {
		t.Fatalf("HandleSetup() error = %v", err)
	}
	if n != 2 || buf[0] != 0 || buf[1] != 0 {
		t.Errorf("status = % X, want 00 00", buf[:n])
	}

	set := outSetup(RequestRecipientDevice, RequestSetFeature, FeatureDeviceRemoteWakeup, 0)
	if _, err := dev.HandleSetup(&set, nil, nil); err != nil {
		t.Fatalf("SET_FEATURE error = %v", err)
	}
	n, _ = dev.HandleSetup(&setup, nil, buf[:])
	if n != 2 || buf[0] != uint8(DeviceStatusRemoteWakeup) {
		t.Errorf("status with wakeup = % X", buf[:n])
	}

	clr := outSetup(RequestRecipientDevice, RequestClearFeature, FeatureDeviceRemoteWakeup, 0)
	if _, err := dev.HandleSetup(&clr, nil, nil); err != nil {
		t.Fatalf("CLEAR_FEATURE error = %v", err)
	}
	if dev.IsRemoteWakeupEnabled() {
		t.Error("remote wakeup still enabled")
	}
}

func TestHandleFeature_InvalidValues(t *testing.T) {
	dev := setupAddressedDevice(t)
	for _, req := range []uint8{RequestSetFeature, RequestClearFeature} {
		setup := outSetup(RequestRecipientDevice, req, FeatureTestMode, 0)
		if _, err := dev.HandleSetup(&setup, nil, nil); !errors.Is(err, pkg.ErrInvalidRequest) {
			t.Errorf("request 0x%02X error = %v, want ErrInvalidRequest", req, err)
		}
	}
}

func TestHandleSetAddress(t *testing.T) {
	dev := setupAddressedDevice(t)
	setup := outSetup(RequestRecipientDevice, RequestSetAddress, 0x0185, 0)
	if _, err := dev.HandleSetup(&setup, nil, nil); err != nil {
		t.Fatalf("HandleSetup() error = %v", err)
	}
	if dev.Address() != 0x05 {
		t.Errorf("Address() = %d, want 5 (masked to 7 bits)", dev.Address())
	}

	setup.Value = 0
	if _, err := dev.HandleSetup(&setup, nil, nil); err != nil {
		t.Fatalf("HandleSetup() error = %v", err)
	}
	if dev.State() != StateDefault {
		t.Errorf("State() = %v, want Default", dev.State())
	}
}

func TestHandleGetDescriptorDevice(t *testing.T) {
	dev := setupAddressedDevice(t)

	var setup SetupPacket
	GetDescriptorSetup(&setup, DescriptorTypeDevice, 0, 0, 64)
	var buf [64]byte
	n, err := dev.HandleSetup(&setup, nil, buf[:])
	if err != nil {
		t.Fatalf("HandleSetup() error = %v", err)
	}
	if n != DeviceDescriptorSize {
		t.Fatalf("n = %d, want %d", n, DeviceDescriptorSize)
	}
	var desc DeviceDescriptor
	if err := ParseDeviceDescriptor(buf[:n], &desc); err != nil {
		t.Fatalf("ParseDeviceDescriptor() error = %v", err)
	}
	if desc.VendorID != 0x2E8A || desc.NumConfigurations != 1 {
		t.Errorf("descriptor = %+v", desc)
	}
}

func TestHandleGetDescriptor_TruncatedResponses(t *testing.T) {
	dev := setupAddressedDevice(t)

	tests := []struct {
		descType uint8
		length   uint16
	}{
		{DescriptorTypeDevice, 8},
		{DescriptorTypeConfiguration, 9},
		{DescriptorTypeString, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("type%d/len%d", tt.descType, tt.length), func(t *testing.T) {
			var setup SetupPacket
			GetDescriptorSetup(&setup, tt.descType, 0, 0, tt.length)
			var buf [MaxControlDataSize]byte
			n, err := dev.HandleSetup(&setup, nil, buf[:])
			if err != nil {
				t.Fatalf("HandleSetup() error = %v", err)
			}
			if n != int(tt.length) {
				t.Errorf("n = %d, want %d", n, tt.length)
			}
		})
	}
}

func TestHandleGetDescriptorConfiguration(t *testing.T) {
	dev := setupAddressedDevice(t)

	var setup SetupPacket
	GetDescriptorSetup(&setup, DescriptorTypeConfiguration, 0, 0, 255)
	var buf [MaxControlDataSize]byte
	n, err := dev.HandleSetup(&setup, nil, buf[:])
	if err != nil {
		t.Fatalf("HandleSetup() error = %v", err)
	}
	if !bytes.Equal(buf[:n], dev.ConfigDescriptor()) {
		t.Errorf("config = % X, want % X", buf[:n], dev.ConfigDescriptor())
	}

	GetDescriptorSetup(&setup, DescriptorTypeConfiguration, 1, 0, 255)
	if _, err := dev.HandleSetup(&setup, nil, buf[:]); !errors.Is(err, pkg.ErrInvalidRequest) {
		t.Errorf("config index 1 error = %v, want ErrInvalidRequest", err)
	}
}

func TestHandleGetDescriptorString(t *testing.T) {
	dev := setupAddressedDevice(t)

	tests := []struct {
		index uint8
		want  string
	}{
		{1, "Raspberry Pi"},
		{2, "Pico"},
		{3, "12345678"},
		{4, "Reset"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			var setup SetupPacket
			GetDescriptorSetup(&setup, DescriptorTypeString, tt.index, LangIDUSEnglish, 255)
			var buf [MaxControlDataSize]byte
			n, err := dev.HandleSetup(&setup, nil, buf[:])
			if err != nil {
				t.Fatalf("HandleSetup() error = %v", err)
			}
			got, err := ParseStringDescriptor(buf[:n])
			if err != nil {
				t.Fatalf("ParseStringDescriptor() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("string %d = %q, want %q", tt.index, got, tt.want)
			}
		})
	}
}

func TestHandleGetDescriptorLanguages(t *testing.T) {
	dev := setupAddressedDevice(t)

	var setup SetupPacket
	GetDescriptorSetup(&setup, DescriptorTypeString, 0, 0, 255)
	var buf [16]byte
	n, err := dev.HandleSetup(&setup, nil, buf[:])
	if err != nil {
		t.Fatalf("HandleSetup() error = %v", err)
	}
	want := []byte{4, DescriptorTypeString, 0x09, 0x04}
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("languages = % X, want % X", buf[:n], want)
	}
}

func TestHandleGetDescriptorInvalid(t *testing.T) {
	dev := setupAddressedDevice(t)

	tests := []struct {
		name     string
		descType uint8
		index    uint8
	}{
		{"unknown string", DescriptorTypeString, 9},
		{"device qualifier", DescriptorTypeDeviceQualifier, 0},
		{"bos", DescriptorTypeBOS, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var setup SetupPacket
			GetDescriptorSetup(&setup, tt.descType, tt.index, 0, 255)
			var buf [MaxControlDataSize]byte
			if _, err := dev.HandleSetup(&setup, nil, buf[:]); !errors.Is(err, pkg.ErrInvalidRequest) {
				t.Errorf("HandleSetup() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestHandleSetConfiguration_Values(t *testing.T) {
	tests := []struct {
		value   uint16
		wantErr error
		want    uint8
	}{
		{0, nil, 0},
		{1, nil, 1},
		{2, pkg.ErrInvalidRequest, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("value%d", tt.value), func(t *testing.T) {
			dev := setupAddressedDevice(t)
			setup := outSetup(RequestRecipientDevice, RequestSetConfiguration, tt.value, 0)
			_, err := dev.HandleSetup(&setup, nil, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}

			get := inSetup(RequestRecipientDevice, RequestGetConfiguration, 0, 0, 1)
			var buf [1]byte
			n, err := dev.HandleSetup(&get, nil, buf[:])
			if err != nil || n != 1 {
				t.Fatalf("GET_CONFIGURATION = %d, %v", n, err)
			}
			if buf[0] != tt.want {
				t.Errorf("configuration = %d, want %d", buf[0], tt.want)
			}
		})
	}
}

func TestHandleInterfaceRequests(t *testing.T) {
	dev := setupAddressedDevice(t)
	var buf [2]byte

	status := inSetup(RequestRecipientInterface, RequestGetStatus, 0, 0, 2)
	if n, err := dev.HandleSetup(&status, nil, buf[:]); err != nil || n != 2 {
		t.Fatalf("GET_STATUS = %d, %v", n, err)
	}

	set := outSetup(RequestRecipientInterface, RequestSetInterface, 1, 0)
	if _, err := dev.HandleSetup(&set, nil, nil); err != nil {
		t.Fatalf("SET_INTERFACE error = %v", err)
	}

	get := inSetup(RequestRecipientInterface, RequestGetInterface, 0, 0, 1)
	n, err := dev.HandleSetup(&get, nil, buf[:])
	if err != nil || n != 1 || buf[0] != 1 {
		t.Errorf("GET_INTERFACE = %d, % X, %v; want alt 1", n, buf[:n], err)
	}

	set.Value = 2
	if _, err := dev.HandleSetup(&set, nil, nil); !errors.Is(err, pkg.ErrInvalidRequest) {
		t.Errorf("SET_INTERFACE 2 error = %v, want ErrInvalidRequest", err)
	}

	dev.Reset()
	n, _ = dev.HandleSetup(&get, nil, buf[:])
	if n != 1 || buf[0] != 0 {
		t.Errorf("alt after reset = %d, want 0", buf[0])
	}
}

func TestHandleInvalidInterface(t *testing.T) {
	dev := setupAddressedDevice(t)
	setup := inSetup(RequestRecipientInterface, RequestGetInterface, 0, 3, 1)
	var buf [1]byte
	if _, err := dev.HandleSetup(&setup, nil, buf[:]); !errors.Is(err, pkg.ErrInvalidRequest) {
		t.Errorf("HandleSetup() error = %v, want ErrInvalidRequest", err)
	}
}

func TestHandleEndpointRequests(t *testing.T) {
	dev := setupAddressedDevice(t)
	var buf [2]byte

	tests := []struct {
		name    string
		setup   SetupPacket
		wantErr error
	}{
		{"status ep0", inSetup(RequestRecipientEndpoint, RequestGetStatus, 0, 0x80, 2), nil},
		{"clear halt ep0", outSetup(RequestRecipientEndpoint, RequestClearFeature, FeatureEndpointHalt, 0), nil},
		{"set halt ep0", outSetup(RequestRecipientEndpoint, RequestSetFeature, FeatureEndpointHalt, 0), pkg.ErrInvalidRequest},
		{"status ep1", inSetup(RequestRecipientEndpoint, RequestGetStatus, 0, 0x81, 2), pkg.ErrInvalidRequest},
		{"synch frame", inSetup(RequestRecipientEndpoint, RequestSynchFrame, 0, 0, 2), pkg.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dev.HandleSetup(&tt.setup, nil, buf[:])
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("HandleSetup() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHandleGetStatus_ShortLength(t *testing.T) {
	dev := setupAddressedDevice(t)
	setup := inSetup(RequestRecipientDevice, RequestGetStatus, 0, 0, 1)
	var buf [8]byte
	if _, err := dev.HandleSetup(&setup, nil, buf[:]); !errors.Is(err, pkg.ErrBufferTooSmall) {
		t.Errorf("HandleSetup() error = %v, want ErrBufferTooSmall", err)
	}
}

func TestHandleOtherRecipient(t *testing.T) {
	dev := setupAddressedDevice(t)
	setup := inSetup(RequestRecipientOther, RequestGetStatus, 0, 0, 2)
	var buf [2]byte
	if _, err := dev.HandleSetup(&setup, nil, buf[:]); !errors.Is(err, pkg.ErrInvalidRequest) {
		t.Errorf("HandleSetup() error = %v, want ErrInvalidRequest", err)
	}
}
