package device

import (
	"fmt"

	"github.com/ardnew/picoreset/pkg"
)

// DeviceConfig holds the identity and power settings of a device.
type DeviceConfig struct {
	VendorID      uint16
	ProductID     uint16
	DeviceVersion uint16 // bcdDevice

	Manufacturer string
	Product      string
	SerialNumber string

	MaxPowerMA     uint16 // Bus current draw in milliamps, at most 500
	MaxPacketSize0 uint8  // EP0 packet size: 8, 16, 32 or 64
	SelfPowered    bool
	RemoteWakeup   bool
}

// DefaultDeviceConfig returns the identity of an RP2040 board running the
// display firmware.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		VendorID:       0x2E8A,
		ProductID:      0x000A,
		DeviceVersion:  0x0100,
		Manufacturer:   "Raspberry Pi",
		Product:        "Pico",
		SerialNumber:   "12345678",
		MaxPowerMA:     250,
		MaxPacketSize0: 64,
	}
}

// Validate checks the configuration for values a host would reject.
func (c *DeviceConfig) Validate() error {
	switch c.MaxPacketSize0 {
	case 8, 16, 32, 64:
	default:
		return fmt.Errorf("%w: max packet size %d", pkg.ErrInvalidParameter, c.MaxPacketSize0)
	}
	if c.MaxPowerMA > 500 {
		return fmt.Errorf("%w: max power %dmA", pkg.ErrInvalidParameter, c.MaxPowerMA)
	}
	return nil
}

// Builder assembles a Device. Class drivers register their functions,
// interfaces, strings and request handlers on it; Build freezes the result.
//
// Every method panics once Build has been called.
type Builder struct {
	device *Device
	config DeviceConfig

	nextString StringIndex
	errors     []error
	built      bool
}

// NewBuilder creates a builder for a device with the given identity.
func NewBuilder(cfg DeviceConfig) *Builder {
	return &Builder{
		device:     newDevice(),
		config:     cfg,
		nextString: FirstDynamicString,
	}
}

func (b *Builder) checkOpen() {
	if b.built {
		panic("device: builder already built")
	}
}

func (b *Builder) fail(err error) {
	b.errors = append(b.errors, err)
}

// AllocString reserves a string descriptor index. The text is served by
// the GetString method of the handler that owns the index.
func (b *Builder) AllocString() StringIndex {
	b.checkOpen()
	if int(b.nextString) >= MaxStrings {
		b.fail(fmt.Errorf("%w: string table full", pkg.ErrNoMemory))
		return 0
	}
	index := b.nextString
	b.nextString++
	return index
}

// Function opens a new function. Interfaces added through the returned
// FunctionBuilder are numbered contiguously.
func (b *Builder) Function(class, subClass, protocol uint8) *FunctionBuilder {
	b.checkOpen()
	d := b.device
	if d.functionCount >= MaxFunctions {
		b.fail(fmt.Errorf("%w: function table full", pkg.ErrNoMemory))
		return &FunctionBuilder{builder: b}
	}
	fn := &d.functions[d.functionCount]
	fn.Class = class
	fn.SubClass = subClass
	fn.Protocol = protocol
	fn.first = InterfaceNumber(d.interfaceCount)
	d.functionCount++

	pkg.LogDebug(pkg.ComponentDevice, "function added",
		"class", class,
		"subClass", subClass,
		"protocol", protocol)

	return &FunctionBuilder{builder: b, function: fn}
}

// Handler registers a request handler. Handlers are consulted in
// registration order.
func (b *Builder) Handler(h Handler) {
	b.checkOpen()
	d := b.device
	if h == nil {
		b.fail(fmt.Errorf("%w: nil handler", pkg.ErrInvalidParameter))
		return
	}
	if d.handlerCount >= MaxHandlers {
		b.fail(fmt.Errorf("%w: handler table full", pkg.ErrNoMemory))
		return
	}
	d.handlers[d.handlerCount] = h
	d.handlerCount++
}

// Build finalizes the descriptors and returns the device.
func (b *Builder) Build() (*Device, error) {
	b.checkOpen()
	b.built = true

	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	d := b.device
	for idx := 0; idx < d.interfaceCount; idx++ {
		if d.interfaces[idx].NumAltSettings() == 0 {
			return nil, fmt.Errorf("%w: interface %d has no alternate setting",
				pkg.ErrInvalidState, idx)
		}
	}

	b.buildDeviceDescriptor()
	if err := b.buildConfigDescriptor(); err != nil {
		return nil, err
	}

	pkg.LogDebug(pkg.ComponentDevice, "device built",
		"vid", d.Descriptor.VendorID,
		"pid", d.Descriptor.ProductID,
		"functions", d.functionCount,
		"interfaces", d.interfaceCount,
		"handlers", d.handlerCount)

	return d, nil
}

func (b *Builder) buildDeviceDescriptor() {
	d := b.device
	cfg := &b.config

	desc := DeviceDescriptor{
		USBVersion:        0x0200,
		MaxPacketSize0:    cfg.MaxPacketSize0,
		VendorID:          cfg.VendorID,
		ProductID:         cfg.ProductID,
		DeviceVersion:     cfg.DeviceVersion,
		NumConfigurations: 1,
	}
	for idx := 0; idx < d.functionCount; idx++ {
		if d.functions[idx].needsIAD() {
			desc.DeviceClass = ClassMisc
			desc.DeviceSubClass = 0x02 // Common Class
			desc.DeviceProtocol = 0x01 // Interface Association Descriptor
			break
		}
	}
	if cfg.Manufacturer != "" {
		desc.ManufacturerIndex = uint8(StringIndexManufacturer)
		d.strings[StringIndexManufacturer] = cfg.Manufacturer
	}
	if cfg.Product != "" {
		desc.ProductIndex = uint8(StringIndexProduct)
		d.strings[StringIndexProduct] = cfg.Product
	}
	if cfg.SerialNumber != "" {
		desc.SerialNumberIndex = uint8(StringIndexSerial)
		d.strings[StringIndexSerial] = cfg.SerialNumber
	}
	d.Descriptor = desc
}

func (b *Builder) buildConfigDescriptor() error {
	d := b.device
	cfg := &b.config
	buf := d.configDesc[:]

	attrs := uint8(ConfigAttrBusPowered)
	if cfg.SelfPowered {
		attrs |= ConfigAttrSelfPowered
	}
	if cfg.RemoteWakeup {
		attrs |= ConfigAttrRemoteWakeup
	}
	d.attributes = attrs

	n := ConfigurationDescriptorSize
	for fidx := 0; fidx < d.functionCount; fidx++ {
		fn := &d.functions[fidx]
		if fn.needsIAD() {
			iad := InterfaceAssociationDescriptor{
				FirstInterface:   uint8(fn.first),
				InterfaceCount:   uint8(fn.count),
				FunctionClass:    fn.Class,
				FunctionSubClass: fn.SubClass,
				FunctionProtocol: fn.Protocol,
			}
			w := iad.MarshalTo(buf[n:])
			if w == 0 {
				return fmt.Errorf("%w: configuration descriptor", pkg.ErrBufferTooSmall)
			}
			n += w
		}
		for iidx := 0; iidx < fn.count; iidx++ {
			iface := &d.interfaces[int(fn.first)+iidx]
			for alt := 0; alt < iface.altCount; alt++ {
				setting := iface.alts[alt]
				id := InterfaceDescriptor{
					InterfaceNumber:   uint8(iface.Number),
					AlternateSetting:  uint8(alt),
					InterfaceClass:    setting.Class,
					InterfaceSubClass: setting.SubClass,
					InterfaceProtocol: setting.Protocol,
					InterfaceIndex:    uint8(setting.String),
				}
				w := id.MarshalTo(buf[n:])
				if w == 0 {
					return fmt.Errorf("%w: configuration descriptor", pkg.ErrBufferTooSmall)
				}
				n += w
			}
		}
	}

	header := ConfigurationDescriptor{
		TotalLength:        uint16(n),
		NumInterfaces:      uint8(d.interfaceCount),
		ConfigurationValue: ConfigurationValue,
		Attributes:         attrs,
		MaxPower:           uint8(cfg.MaxPowerMA / 2),
	}
	header.MarshalTo(buf)
	d.configLen = n
	return nil
}

// FunctionBuilder adds interfaces to a function opened by Builder.Function.
type FunctionBuilder struct {
	builder  *Builder
	function *Function
}

// Interface adds an interface to the function and assigns its number.
func (f *FunctionBuilder) Interface() *InterfaceBuilder {
	b := f.builder
	b.checkOpen()
	if f.function == nil {
		return &InterfaceBuilder{builder: b}
	}

	d := b.device
	if f.function != &d.functions[d.functionCount-1] {
		b.fail(fmt.Errorf("%w: interfaces of a function must be contiguous", pkg.ErrInvalidState))
		return &InterfaceBuilder{builder: b}
	}
	if d.interfaceCount >= MaxInterfaces {
		b.fail(fmt.Errorf("%w: interface table full", pkg.ErrNoMemory))
		return &InterfaceBuilder{builder: b}
	}

	iface := &d.interfaces[d.interfaceCount]
	iface.Number = InterfaceNumber(d.interfaceCount)
	d.interfaceCount++
	f.function.count++

	pkg.LogDebug(pkg.ComponentDevice, "interface added",
		"interface", iface.Number)

	return &InterfaceBuilder{builder: b, iface: iface}
}

// InterfaceBuilder adds alternate settings to an interface.
type InterfaceBuilder struct {
	builder *Builder
	iface   *Interface
}

// Number returns the interface number assigned by the builder.
func (i *InterfaceBuilder) Number() InterfaceNumber {
	if i.iface == nil {
		return 0
	}
	return i.iface.Number
}

// AltSetting appends an alternate setting with the given class triple and
// interface string.
func (i *InterfaceBuilder) AltSetting(class, subClass, protocol uint8, str StringIndex) *InterfaceBuilder {
	b := i.builder
	b.checkOpen()
	if i.iface == nil {
		return i
	}
	if _, err := i.iface.addAltSetting(AltSetting{
		Class:    class,
		SubClass: subClass,
		Protocol: protocol,
		String:   str,
	}); err != nil {
		b.fail(fmt.Errorf("interface %d: %w", i.iface.Number, err))
	}
	return i
}
