// Package fifo finds and resets emulated boards on a FIFO bus.
//
// The bus directory holds one device-{uuid} subdirectory per board, created
// by the device-side FIFO HAL. Messages use the same framing in both
// directions: [type, len_lo, len_hi, payload...].
package fifo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ardnew/picoreset/device"
	"github.com/ardnew/picoreset/device/class/picoreset"
	"github.com/ardnew/picoreset/host"
	"github.com/ardnew/picoreset/pkg"
)

// Message types for FIFO protocol (must match the device HAL).
const (
	msgSetup   = 0x01 // SETUP packet
	msgData    = 0x02 // DATA packet
	msgAck     = 0x03 // ACK response
	msgNak     = 0x04 // NAK response
	msgStall   = 0x05 // STALL response
	msgReset   = 0x12 // Port reset
	msgAddress = 0x13 // Set address
)

// Buffer sizes.
const (
	maxPacketSize = 512 // Largest message payload
	headerSize    = 3   // Message header size (type + length)
)

// FIFO file names (inside each device subdirectory).
const (
	fifoHostToDevice = "host_to_device"
	fifoDeviceToHost = "device_to_host"
	fifoConnection   = "connection"
	dirPrefix        = "device-"
)

// DefaultTimeout bounds each control transfer.
const DefaultTimeout = 5 * time.Second

// Transport implements host.Transport on a FIFO bus directory.
type Transport struct {
	busDir   string
	subClass uint8
	protocol uint8
	timeout  time.Duration
}

// Option customizes a Transport.
type Option func(*Transport)

// WithClass matches reset interfaces advertising subClass and protocol.
func WithClass(subClass, protocol uint8) Option {
	return func(t *Transport) {
		t.subClass = subClass
		t.protocol = protocol
	}
}

// WithTimeout sets the control transfer timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.timeout = d
	}
}

// New creates a transport for the bus rooted at busDir.
func New(busDir string, opts ...Option) *Transport {
	t := &Transport{
		busDir:   busDir,
		subClass: picoreset.SubclassReset,
		protocol: picoreset.ProtocolReset,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Close implements host.Transport.
func (t *Transport) Close() error {
	return nil
}

// Devices queries every board on the bus for its descriptors and lists the
// ones with a reset interface. Directories left behind by boards that are
// gone are skipped.
func (t *Transport) Devices(ctx context.Context) ([]host.Info, error) {
	entries, err := os.ReadDir(t.busDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bus: %w", err)
	}

	var infos []host.Info
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := filepath.Join(t.busDir, entry.Name())
		info, err := t.query(ctx, dir)
		if err != nil {
			pkg.LogDebug(pkg.ComponentHost, "skipping board",
				"dir", dir,
				"error", err)
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// query reads the identity and reset interface of the board in dir.
func (t *Transport) query(ctx context.Context, dir string) (host.Info, error) {
	c, err := t.dial(dir)
	if err != nil {
		return host.Info{}, err
	}
	defer c.Close()

	var buf [device.MaxConfigDescriptorSize]byte
	n, err := c.getDescriptor(ctx, device.DescriptorTypeDevice, 0, 0, buf[:device.DeviceDescriptorSize])
	if err != nil {
		return host.Info{}, fmt.Errorf("device descriptor: %w", err)
	}
	var desc device.DeviceDescriptor
	if err := device.ParseDeviceDescriptor(buf[:n], &desc); err != nil {
		return host.Info{}, err
	}

	n, err = c.getDescriptor(ctx, device.DescriptorTypeConfiguration, 0, 0, buf[:])
	if err != nil {
		return host.Info{}, fmt.Errorf("configuration descriptor: %w", err)
	}
	iface, err := host.FindResetInterface(buf[:n], t.subClass, t.protocol)
	if err != nil {
		return host.Info{}, err
	}

	uuid := strings.TrimPrefix(filepath.Base(dir), dirPrefix)
	return host.Info{
		ID:           uuid,
		VendorID:     desc.VendorID,
		ProductID:    desc.ProductID,
		Manufacturer: c.getString(ctx, desc.ManufacturerIndex),
		Product:      c.getString(ctx, desc.ProductIndex),
		SerialNumber: c.getString(ctx, desc.SerialNumberIndex),
		Interface:    iface,
	}, nil
}

// Open connects to the board with info's ID and resets its port.
func (t *Transport) Open(ctx context.Context, info host.Info) (host.Conn, error) {
	c, err := t.dial(filepath.Join(t.busDir, dirPrefix+info.ID))
	if err != nil {
		return nil, err
	}
	if err := c.busReset(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("reset port: %w", err)
	}
	return c, nil
}

// dial opens the control pipes of the board in dir. Opening the write end
// fails with ENXIO when no device process holds the pipe.
func (t *Transport) dial(dir string) (*Conn, error) {
	toDevice, err := os.OpenFile(filepath.Join(dir, fifoHostToDevice), os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, syscall.ENXIO) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", pkg.ErrNoDevice, dir)
		}
		return nil, fmt.Errorf("open %s: %w", fifoHostToDevice, err)
	}
	fromDevice, err := os.OpenFile(filepath.Join(dir, fifoDeviceToHost), os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		toDevice.Close()
		return nil, fmt.Errorf("open %s: %w", fifoDeviceToHost, err)
	}
	return &Conn{
		dir:        dir,
		toDevice:   toDevice,
		fromDevice: fromDevice,
		timeout:    t.timeout,
	}, nil
}

// Conn is an open connection to an emulated board.
type Conn struct {
	dir        string
	toDevice   *os.File
	fromDevice *os.File
	timeout    time.Duration
	address    uint8

	txBuf [headerSize + maxPacketSize]byte
	rxBuf [headerSize + maxPacketSize]byte
}

// Close closes the control pipes.
func (c *Conn) Close() error {
	return errors.Join(c.toDevice.Close(), c.fromDevice.Close())
}

// ControlOut implements host.Requester.
func (c *Conn) ControlOut(ctx context.Context, setup *device.SetupPacket, data []byte) error {
	_, err := c.control(ctx, setup, data, nil)
	return err
}

// ControlIn performs an IN control transfer and returns the data stage
// length.
func (c *Conn) ControlIn(ctx context.Context, setup *device.SetupPacket, buf []byte) (int, error) {
	return c.control(ctx, setup, nil, buf)
}

// SetAddress assigns the board a bus address.
func (c *Conn) SetAddress(ctx context.Context, address uint8) error {
	c.txBuf[headerSize] = address
	if err := c.send(msgAddress, 1); err != nil {
		return err
	}
	if err := c.expect(ctx, msgAck); err != nil {
		return err
	}
	c.address = address
	return nil
}

// busReset resets the board's port and waits for the acknowledgement.
func (c *Conn) busReset(ctx context.Context) error {
	if err := c.send(msgReset, 0); err != nil {
		return err
	}
	if err := c.expect(ctx, msgAck); err != nil {
		return err
	}
	c.address = 0
	return nil
}

// control sends a SETUP message [address, setup(8), OUT data...] and waits
// for DATA, ACK or STALL.
func (c *Conn) control(ctx context.Context, setup *device.SetupPacket, out, in []byte) (int, error) {
	if 1+device.SetupPacketSize+len(out) > maxPacketSize {
		return 0, pkg.ErrBufferTooSmall
	}
	c.txBuf[headerSize] = c.address
	setup.MarshalTo(c.txBuf[headerSize+1:])
	n := copy(c.txBuf[headerSize+1+device.SetupPacketSize:], out)
	if err := c.send(msgSetup, 1+device.SetupPacketSize+n); err != nil {
		return 0, err
	}

	msgType, payload, err := c.receive(ctx)
	if err != nil {
		return 0, err
	}
	if msgType == msgData {
		return copy(in, payload), nil
	}
	status := controlStatus(msgType)
	if status == pkg.ControlStatusError {
		return 0, fmt.Errorf("%w: response type 0x%02X", pkg.ErrProtocol, msgType)
	}
	return 0, status.Error()
}

// controlStatus maps a handshake message to the status stage outcome.
func controlStatus(msgType byte) pkg.ControlStatus {
	switch msgType {
	case msgAck:
		return pkg.ControlStatusAck
	case msgStall:
		return pkg.ControlStatusStall
	case msgNak:
		return pkg.ControlStatusNAK
	default:
		return pkg.ControlStatusError
	}
}

// getDescriptor reads a standard descriptor into buf.
func (c *Conn) getDescriptor(ctx context.Context, descType, index uint8, langID uint16, buf []byte) (int, error) {
	var setup device.SetupPacket
	device.GetDescriptorSetup(&setup, descType, index, langID, uint16(len(buf)))
	return c.ControlIn(ctx, &setup, buf)
}

// getString reads a string descriptor, returning "" when it is absent.
func (c *Conn) getString(ctx context.Context, index uint8) string {
	if index == 0 {
		return ""
	}
	var buf [device.MaxStringDescriptorSize]byte
	n, err := c.getDescriptor(ctx, device.DescriptorTypeString, index, device.LangIDUSEnglish, buf[:])
	if err != nil {
		return ""
	}
	s, err := device.ParseStringDescriptor(buf[:n])
	if err != nil {
		return ""
	}
	return s
}

// send writes the message whose payload is already in txBuf.
func (c *Conn) send(msgType byte, payloadLen int) error {
	c.txBuf[0] = msgType
	binary.LittleEndian.PutUint16(c.txBuf[1:3], uint16(payloadLen))
	total := headerSize + payloadLen
	for written := 0; written < total; {
		n, err := c.toDevice.Write(c.txBuf[written:total])
		written += n
		if err != nil {
			return err
		}
	}
	return nil
}

// expect reads one message and checks its type.
func (c *Conn) expect(ctx context.Context, want byte) error {
	msgType, _, err := c.receive(ctx)
	if err != nil {
		return err
	}
	if msgType != want {
		return fmt.Errorf("%w: response type 0x%02X", pkg.ErrProtocol, msgType)
	}
	return nil
}

// receive reads one message. The payload aliases rxBuf.
func (c *Conn) receive(ctx context.Context) (byte, []byte, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.readFull(ctx, c.rxBuf[:headerSize], deadline); err != nil {
		return 0, nil, err
	}
	length := int(binary.LittleEndian.Uint16(c.rxBuf[1:3]))
	if length > maxPacketSize {
		return 0, nil, fmt.Errorf("%w: message length %d", pkg.ErrProtocol, length)
	}
	payload := c.rxBuf[headerSize : headerSize+length]
	if err := c.readFull(ctx, payload, deadline); err != nil {
		return 0, nil, err
	}
	return c.rxBuf[0], payload, nil
}

// readFull fills buf before deadline. EOF means the board closed its end.
func (c *Conn) readFull(ctx context.Context, buf []byte, deadline time.Time) error {
	for total := 0; total < len(buf); {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !time.Now().Before(deadline) {
			return pkg.ErrTimeout
		}
		step := time.Now().Add(100 * time.Millisecond)
		if step.After(deadline) {
			step = deadline
		}
		c.fromDevice.SetReadDeadline(step)
		n, err := c.fromDevice.Read(buf[total:])
		total += n
		switch {
		case err == nil:
		case os.IsTimeout(err):
		case errors.Is(err, io.EOF):
			// No writer yet, or the board went away.
			if n == 0 && !c.alive() {
				return fmt.Errorf("%w: %s", pkg.ErrNoDevice, c.dir)
			}
			time.Sleep(10 * time.Millisecond)
		default:
			return err
		}
	}
	return nil
}

// alive reports whether the board's directory still exists.
func (c *Conn) alive() bool {
	_, err := os.Stat(filepath.Join(c.dir, fifoConnection))
	return err == nil
}

var (
	_ host.Transport = (*Transport)(nil)
	_ host.Conn      = (*Conn)(nil)
)
