package fifo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/ardnew/picoreset/device"
	"github.com/ardnew/picoreset/device/class/picoreset"
	devfifo "github.com/ardnew/picoreset/device/hal/fifo"
	"github.com/ardnew/picoreset/host"
	"github.com/ardnew/picoreset/pkg"
)

type resetCall struct {
	gpioMask, flags uint32
}

// board is an emulated board running on a bus directory.
type board struct {
	hal   *devfifo.HAL
	state *picoreset.State
	calls chan resetCall
}

func startBoard(t *testing.T, busDir string, cfg picoreset.Config) *board {
	t.Helper()
	b := &board{calls: make(chan resetCall, 1)}

	builder := device.NewBuilder(device.DefaultDeviceConfig())
	// A vendor function ahead of the reset interface moves it to number 1.
	builder.Function(device.ClassVendor, 0x42, 0x00).Interface().
		AltSetting(device.ClassVendor, 0x42, 0x00, 0)
	b.state = picoreset.NewState(func(gpioMask, flags uint32) {
		b.calls <- resetCall{gpioMask: gpioMask, flags: flags}
		runtime.Goexit()
	})
	picoreset.Configure(builder, b.state, cfg)
	dev, err := builder.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	b.hal = devfifo.New(busDir)
	stack := device.NewStack(dev, b.hal)
	if err := stack.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { stack.Stop() })
	return b
}

func openBoard(t *testing.T, tr *Transport) (host.Info, host.Conn) {
	t.Helper()
	ctx := context.Background()
	infos, err := tr.Devices(ctx)
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("Devices() found %d boards, want 1", len(infos))
	}
	conn, err := tr.Open(ctx, infos[0])
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return infos[0], conn
}

func TestTransport_Devices(t *testing.T) {
	busDir := t.TempDir()
	b := startBoard(t, busDir, picoreset.DefaultConfig())

	tr := New(busDir, WithTimeout(time.Second))
	info, _ := openBoard(t, tr)

	if info.ID != b.hal.UUID() {
		t.Errorf("ID = %q, want %q", info.ID, b.hal.UUID())
	}
	if info.VendorID != 0x2E8A || info.ProductID != 0x000A {
		t.Errorf("ID = %04x:%04x, want 2e8a:000a", info.VendorID, info.ProductID)
	}
	if info.Manufacturer != "Raspberry Pi" || info.Product != "Pico" || info.SerialNumber != "12345678" {
		t.Errorf("strings = %q %q %q", info.Manufacturer, info.Product, info.SerialNumber)
	}
	if info.Interface != b.state.Control().Interface() || info.Interface != 1 {
		t.Errorf("Interface = %d, want 1", info.Interface)
	}
}

func TestTransport_DevicesEmptyBus(t *testing.T) {
	tr := New(t.TempDir() + "/missing")
	infos, err := tr.Devices(context.Background())
	if err != nil || len(infos) != 0 {
		t.Errorf("Devices() = %v, %v, want none", infos, err)
	}
}

func TestTransport_DevicesOtherClass(t *testing.T) {
	busDir := t.TempDir()
	startBoard(t, busDir, picoreset.Config{SubClass: 0x10, Protocol: 0x02})

	infos, err := New(busDir, WithTimeout(time.Second)).Devices(context.Background())
	if err != nil || len(infos) != 0 {
		t.Fatalf("Devices() = %v, %v, want none", infos, err)
	}

	infos, err = New(busDir, WithClass(0x10, 0x02), WithTimeout(time.Second)).Devices(context.Background())
	if err != nil || len(infos) != 1 {
		t.Fatalf("Devices() with class = %v, %v, want one board", infos, err)
	}
}

func TestTransport_DevicesSkipsDeadBoards(t *testing.T) {
	busDir := t.TempDir()
	b := startBoard(t, busDir, picoreset.DefaultConfig())

	// Attached but never serving requests.
	silent := devfifo.New(busDir)
	if err := silent.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { silent.Stop() })

	// Left behind by a process that exited.
	stale := filepath.Join(busDir, dirPrefix+"stale")
	if err := os.Mkdir(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{fifoHostToDevice, fifoDeviceToHost, fifoConnection} {
		if err := syscall.Mkfifo(filepath.Join(stale, name), 0o666); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := New(busDir, WithTimeout(200*time.Millisecond)).Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(infos) != 1 || infos[0].ID != b.hal.UUID() {
		t.Errorf("Devices() = %v, want only %s", infos, b.hal.UUID())
	}
}

func TestTransport_Reset(t *testing.T) {
	busDir := t.TempDir()
	b := startBoard(t, busDir, picoreset.Config{
		DisableInterface: picoreset.DisableMassStorage,
		Protocol:         picoreset.ProtocolReset,
	})

	tr := New(busDir, WithTimeout(200*time.Millisecond))
	info, conn := openBoard(t, tr)

	req := picoreset.Request{ActivityPin: picoreset.LED(3), Flags: 0x10}
	if err := host.Reset(context.Background(), conn, info.Interface, req); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	select {
	case call := <-b.calls:
		if call.gpioMask != 1<<3 || call.flags != 0x11 {
			t.Errorf("reset(%#x, %#x), want reset(0x8, 0x11)", call.gpioMask, call.flags)
		}
	case <-time.After(time.Second):
		t.Fatal("reset was not called")
	}
}

func TestTransport_ResetRejected(t *testing.T) {
	busDir := t.TempDir()
	b := startBoard(t, busDir, picoreset.DefaultConfig())

	_, conn := openBoard(t, New(busDir, WithTimeout(time.Second)))

	var setup device.SetupPacket
	device.ClassInterfaceOutSetup(&setup, uint8(b.state.Control().Interface()), picoreset.RequestFlash, 0)
	if err := conn.ControlOut(context.Background(), &setup, nil); !errors.Is(err, pkg.ErrStall) {
		t.Errorf("ControlOut(flash) error = %v, want ErrStall", err)
	}

	err := host.Reset(context.Background(), conn, 0, picoreset.Request{})
	if !errors.Is(err, pkg.ErrRejected) {
		t.Errorf("Reset(interface 0) error = %v, want ErrRejected", err)
	}

	select {
	case call := <-b.calls:
		t.Errorf("unexpected reset(%#x, %#x)", call.gpioMask, call.flags)
	default:
	}
}

func TestConn_SetAddress(t *testing.T) {
	busDir := t.TempDir()
	b := startBoard(t, busDir, picoreset.DefaultConfig())

	_, conn := openBoard(t, New(busDir, WithTimeout(time.Second)))
	c := conn.(*Conn)
	if err := c.SetAddress(context.Background(), 7); err != nil {
		t.Fatalf("SetAddress() error = %v", err)
	}
	if got := b.hal.Address(); got != 7 {
		t.Errorf("device address = %d, want 7", got)
	}

	var setup device.SetupPacket
	device.GetDescriptorSetup(&setup, device.DescriptorTypeDevice, 0, 0, device.DeviceDescriptorSize)
	var buf [device.DeviceDescriptorSize]byte
	n, err := c.ControlIn(context.Background(), &setup, buf[:])
	if err != nil || n != device.DeviceDescriptorSize {
		t.Errorf("ControlIn() = %d, %v, want %d bytes", n, err, device.DeviceDescriptorSize)
	}
}

func TestConn_Timeout(t *testing.T) {
	busDir := t.TempDir()
	h := devfifo.New(busDir)
	if err := h.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { h.Stop() })

	tr := New(busDir, WithTimeout(100*time.Millisecond))
	c, err := tr.dial(h.DeviceDir())
	if err != nil {
		t.Fatalf("dial() error = %v", err)
	}
	defer c.Close()

	var setup device.SetupPacket
	device.GetDescriptorSetup(&setup, device.DescriptorTypeDevice, 0, 0, device.DeviceDescriptorSize)
	var buf [device.DeviceDescriptorSize]byte
	if _, err := c.ControlIn(context.Background(), &setup, buf[:]); !errors.Is(err, pkg.ErrTimeout) {
		t.Errorf("ControlIn() error = %v, want ErrTimeout", err)
	}
}

func TestControlStatus(t *testing.T) {
	tests := []struct {
		msgType byte
		want    pkg.ControlStatus
	}{
		{msgAck, pkg.ControlStatusAck},
		{msgStall, pkg.ControlStatusStall},
		{msgNak, pkg.ControlStatusNAK},
		{msgReset, pkg.ControlStatusError},
	}
	for _, tt := range tests {
		if got := controlStatus(tt.msgType); got != tt.want {
			t.Errorf("controlStatus(0x%02X) = %v, want %v", tt.msgType, got, tt.want)
		}
	}
}
