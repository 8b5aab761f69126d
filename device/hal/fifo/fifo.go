package fifo

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ardnew/picoreset/device/hal"
	"github.com/ardnew/picoreset/pkg"
)

// MaxPacketSize is the largest message payload accepted on the control pipe.
const MaxPacketSize = 512

// Message types for FIFO protocol (must match host side).
const (
	msgSetup   = 0x01 // SETUP packet from host
	msgData    = 0x02 // DATA packet
	msgAck     = 0x03 // ACK response
	msgNak     = 0x04 // NAK response
	msgStall   = 0x05 // STALL response
	msgReset   = 0x12 // Port reset
	msgAddress = 0x13 // Set address
)

// Header size for messages.
const headerSize = 3 // type (1) + length (2)

// Connection signal bytes (one-way signaling to host).
const (
	sigConnect    = 0x01 // Device connected
	sigDisconnect = 0x00 // Device disconnected
)

// FIFO file names.
const (
	fifoHostToDevice = "host_to_device"
	fifoDeviceToHost = "device_to_host"
	fifoConnection   = "connection"
)

// DirPrefix prefixes every device subdirectory on the bus.
const DirPrefix = "device-"

// readTimeout bounds each blocking read so cancellation is noticed.
const readTimeout = 100 * time.Millisecond

// HAL implements hal.DeviceHAL using named pipes (FIFOs).
// Each device instance creates a unique subdirectory under the bus directory.
type HAL struct {
	// Bus directory (root directory shared with host)
	busDir string

	// Device subdirectory (busDir/device-{uuid}/)
	deviceDir string
	uuid      string

	// Control endpoint FIFOs
	hostToDeviceRead  *os.File // Device reads commands from host
	deviceToHostWrite *os.File // Device writes responses to host
	connectionWrite   *os.File // Device signals connection status

	// State
	connected uint32 // Atomic: 1 = connected, 0 = disconnected
	address   uint8

	// Synchronization
	mutex     sync.RWMutex
	writeMu   sync.Mutex
	initDone  bool
	connectCh chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once

	// Internal buffers (zero-allocation)
	readBuf  [headerSize + MaxPacketSize]byte
	writeBuf [headerSize + MaxPacketSize]byte

	// OUT data stage carried by the last SETUP message
	outData [MaxPacketSize]byte
	outLen  int
}

// New creates a new FIFO-based device HAL.
// The busDir parameter specifies the root bus directory shared with the host.
// The device will create its own subdirectory (device-{uuid}/) inside busDir.
func New(busDir string) *HAL {
	return &HAL{
		busDir:    busDir,
		connectCh: make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
	}
}

// generateUUID generates a random UUID using crypto/rand.
func generateUUID() (string, error) {
	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		return "", err
	}
	// Set version 4 (random) bits
	uuid[6] = (uuid[6] & 0x0f) | 0x40
	uuid[8] = (uuid[8] & 0x3f) | 0x80
	return hex.EncodeToString(uuid[:]), nil
}

// Init creates the device subdirectory and its FIFOs.
func (h *HAL) Init(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.initDone {
		return pkg.ErrAlreadyRunning
	}

	uuid, err := generateUUID()
	if err != nil {
		return fmt.Errorf("generate uuid: %w", err)
	}
	h.uuid = uuid
	h.deviceDir = filepath.Join(h.busDir, DirPrefix+uuid)

	if err := os.MkdirAll(h.deviceDir, 0o755); err != nil {
		return fmt.Errorf("create device dir: %w", err)
	}

	for _, name := range []string{fifoHostToDevice, fifoDeviceToHost, fifoConnection} {
		if err := h.createFIFO(name); err != nil {
			h.cleanup()
			return err
		}
	}

	// O_RDWR keeps each pipe open from both ends so neither side blocks on
	// open or sees EOF while the peer is away.
	if h.connectionWrite, err = h.openFIFO(fifoConnection); err != nil {
		h.cleanup()
		return err
	}
	if h.deviceToHostWrite, err = h.openFIFO(fifoDeviceToHost); err != nil {
		h.cleanup()
		return err
	}
	if h.hostToDeviceRead, err = h.openFIFO(fifoHostToDevice); err != nil {
		h.cleanup()
		return err
	}

	h.initDone = true
	pkg.LogInfo(pkg.ComponentHAL, "fifo device HAL initialized",
		"busDir", h.busDir,
		"deviceDir", h.deviceDir)

	return nil
}

// Start signals the connection to the host.
func (h *HAL) Start() error {
	h.mutex.RLock()
	if !h.initDone {
		h.mutex.RUnlock()
		return pkg.ErrNotConfigured
	}
	f := h.connectionWrite
	h.mutex.RUnlock()

	if _, err := f.Write([]byte{sigConnect}); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "failed to signal connection", "error", err)
	}

	atomic.StoreUint32(&h.connected, 1)
	select {
	case h.connectCh <- struct{}{}:
	default:
	}

	pkg.LogInfo(pkg.ComponentHAL, "fifo device HAL started")
	return nil
}

// Stop signals disconnection, closes the FIFOs and removes the device
// directory.
func (h *HAL) Stop() error {
	h.mutex.RLock()
	if h.connectionWrite != nil {
		h.connectionWrite.Write([]byte{sigDisconnect})
	}
	h.mutex.RUnlock()

	atomic.StoreUint32(&h.connected, 0)
	h.closeOnce.Do(func() {
		close(h.closeCh)
	})

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.cleanup()
	h.initDone = false
	pkg.LogInfo(pkg.ComponentHAL, "fifo device HAL stopped")
	return nil
}

// cleanup closes all FIFOs and removes the device directory.
func (h *HAL) cleanup() {
	for _, f := range []**os.File{&h.hostToDeviceRead, &h.deviceToHostWrite, &h.connectionWrite} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
	if h.deviceDir != "" {
		os.RemoveAll(h.deviceDir)
	}
}

// SetAddress records the device address. The pipes are point to point, so
// the address only serves diagnostics.
func (h *HAL) SetAddress(address uint8) error {
	h.mutex.Lock()
	h.address = address
	h.mutex.Unlock()
	pkg.LogDebug(pkg.ComponentHAL, "address set", "address", address)
	return nil
}

// Address returns the last address set by the stack or the host.
func (h *HAL) Address() uint8 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.address
}

// ReadSetup reads messages from the host until a SETUP packet arrives.
// Reset messages are acknowledged and reported as pkg.ErrReset.
func (h *HAL) ReadSetup(ctx context.Context, out *hal.SetupPacket) error {
	h.mutex.RLock()
	f := h.hostToDeviceRead
	h.mutex.RUnlock()

	if f == nil {
		return pkg.ErrNotConfigured
	}

	for {
		header := h.readBuf[:headerSize]
		if _, err := h.readWithContext(ctx, f, header); err != nil {
			return err
		}

		msgType := header[0]
		msgLen := int(binary.LittleEndian.Uint16(header[1:3]))
		if msgLen > MaxPacketSize {
			return fmt.Errorf("%w: message length %d", pkg.ErrProtocol, msgLen)
		}

		payload := h.readBuf[headerSize : headerSize+msgLen]
		if msgLen > 0 {
			if _, err := h.readWithContext(ctx, f, payload); err != nil {
				return err
			}
		}

		switch msgType {
		case msgSetup:
			// Payload: [address, setup_packet(8), optional OUT data...]
			if msgLen < 1+hal.SetupPacketSize {
				return pkg.ErrSetupPacketTooShort
			}
			hal.ParseSetupPacket(payload[1:], out)
			h.outLen = copy(h.outData[:], payload[1+hal.SetupPacketSize:])

			pkg.LogDebug(pkg.ComponentHAL, "setup received",
				"reqType", out.RequestType,
				"req", out.Request,
				"value", out.Value,
				"index", out.Index,
				"length", out.Length,
				"data", h.outLen)
			return nil

		case msgReset:
			h.sendAck()
			pkg.LogDebug(pkg.ComponentHAL, "port reset received")
			return pkg.ErrReset

		case msgAddress:
			if msgLen >= 1 {
				h.SetAddress(payload[0])
				h.sendAck()
			}
			continue

		default:
			pkg.LogWarn(pkg.ComponentHAL, "unexpected message on control pipe",
				"type", msgType)
			continue
		}
	}
}

// ReadEP0 returns the OUT data stage that arrived with the last SETUP
// message.
func (h *HAL) ReadEP0(ctx context.Context, buf []byte) (int, error) {
	if h.outLen < len(buf) {
		return 0, fmt.Errorf("%w: data stage has %d of %d bytes",
			pkg.ErrProtocol, h.outLen, len(buf))
	}
	return copy(buf, h.outData[:h.outLen]), nil
}

// WriteEP0 sends the IN data stage of a control transfer.
func (h *HAL) WriteEP0(ctx context.Context, data []byte) error {
	return h.sendMessage(ctx, msgData, data)
}

// AckEP0 completes an OUT control transfer.
func (h *HAL) AckEP0() error {
	return h.sendAck()
}

// StallEP0 fails the current control transfer.
func (h *HAL) StallEP0() error {
	pkg.LogDebug(pkg.ComponentHAL, "EP0 stalled")
	return h.sendMessage(context.Background(), msgStall, nil)
}

// sendAck sends an ACK message to the host.
func (h *HAL) sendAck() error {
	return h.sendMessage(context.Background(), msgAck, nil)
}

// IsConnected returns true if connected to a host.
func (h *HAL) IsConnected() bool {
	return atomic.LoadUint32(&h.connected) == 1
}

// WaitConnect blocks until connected or context is cancelled.
func (h *HAL) WaitConnect(ctx context.Context) error {
	if h.IsConnected() {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.connectCh:
		return nil
	case <-h.closeCh:
		return pkg.ErrCancelled
	}
}

// DeviceDir returns the device subdirectory path.
func (h *HAL) DeviceDir() string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.deviceDir
}

// UUID returns the device's unique identifier.
func (h *HAL) UUID() string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.uuid
}

// createFIFO creates a named pipe in the device directory.
func (h *HAL) createFIFO(name string) error {
	path := filepath.Join(h.deviceDir, name)
	os.Remove(path)
	if err := syscall.Mkfifo(path, 0o666); err != nil {
		return fmt.Errorf("mkfifo %s: %w", name, err)
	}
	return nil
}

// openFIFO opens a named pipe in the device directory for reading and
// writing without blocking.
func (h *HAL) openFIFO(name string) (*os.File, error) {
	path := filepath.Join(h.deviceDir, name)
	f, err := os.OpenFile(path, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// readWithContext reads exactly len(buf) bytes, retrying on read timeouts
// until the context is cancelled or the HAL is stopped.
func (h *HAL) readWithContext(ctx context.Context, f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-h.closeCh:
			return total, pkg.ErrCancelled
		default:
		}

		f.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return total, err
		}
	}
	return total, nil
}

// sendMessage writes [type, len_lo, len_hi, data...] to the host.
func (h *HAL) sendMessage(ctx context.Context, msgType byte, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.closeCh:
		return pkg.ErrCancelled
	default:
	}

	h.mutex.RLock()
	f := h.deviceToHostWrite
	h.mutex.RUnlock()
	if f == nil {
		return pkg.ErrNotConfigured
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	n := len(data)
	if n > MaxPacketSize {
		n = MaxPacketSize
	}
	h.writeBuf[0] = msgType
	binary.LittleEndian.PutUint16(h.writeBuf[1:3], uint16(n))
	copy(h.writeBuf[headerSize:], data[:n])

	total := headerSize + n
	for written := 0; written < total; {
		m, err := f.Write(h.writeBuf[written:total])
		written += m
		if err != nil {
			return err
		}
	}
	return nil
}

var _ hal.DeviceHAL = (*HAL)(nil)
