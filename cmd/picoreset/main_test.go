package main

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ardnew/picoreset/device"
	"github.com/ardnew/picoreset/device/class/picoreset"
	devfifo "github.com/ardnew/picoreset/device/hal/fifo"
	"github.com/ardnew/picoreset/host"
	"github.com/ardnew/picoreset/host/fifo"
	"github.com/ardnew/picoreset/internal/config"
	"github.com/ardnew/picoreset/internal/usbid"
	"github.com/ardnew/picoreset/pkg"
)

func TestNewRequest(t *testing.T) {
	tests := []struct {
		name     string
		pin      int
		msc      bool
		picoboot bool
		flags    uint8
		want     uint16
		wantErr  bool
	}{
		{"defaults", -1, false, false, 0, 0x0000, false},
		{"pin", 25, false, false, 0, 25<<9 | 0x100, false},
		{"disable msc", -1, true, false, 0, 0x0001, false},
		{"disable picoboot with flags", 3, false, true, 0x10, 3<<9 | 0x100 | 0x12, false},
		{"both disabled", -1, true, true, 0, 0, true},
		{"pin too high", 128, false, false, 0, 0, true},
		{"flags too high", -1, false, false, 0x80, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := newRequest(tt.pin, tt.msc, tt.picoboot, tt.flags)
			if tt.wantErr {
				if !errors.Is(err, pkg.ErrInvalidParameter) {
					t.Errorf("newRequest() error = %v, want ErrInvalidParameter", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("newRequest() error = %v", err)
			}
			if got := req.Value(); got != tt.want {
				t.Errorf("Value() = 0x%04X, want 0x%04X", got, tt.want)
			}
		})
	}
}

func TestOpenTransport(t *testing.T) {
	c := config.DefaultConfig()
	c.Host.Transport = config.TransportFIFO
	tr, err := openTransport(c)
	if err != nil {
		t.Fatalf("openTransport(fifo) error = %v", err)
	}
	if _, ok := tr.(*fifo.Transport); !ok {
		t.Errorf("openTransport(fifo) = %T", tr)
	}
	tr.Close()

	c.Host.Transport = "serial"
	if _, err := openTransport(c); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("openTransport(serial) error = %v, want ErrInvalidParameter", err)
	}
}

func TestPrintBoards(t *testing.T) {
	ids := usbid.NewWithPaths(nil)
	infos := []host.Info{
		{ID: "1.4", VendorID: 0x2E8A, ProductID: 0x000A, SerialNumber: "E661", Interface: 2},
		{ID: "1.7", VendorID: 0xCAFE, ProductID: 0x0001, Manufacturer: "Acme", Product: "Widget", Interface: 0},
	}

	var buf bytes.Buffer
	if err := printBoards(&buf, infos, ids); err != nil {
		t.Fatalf("printBoards() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"1.4", "2e8a:000a", "Raspberry Pi", "E661", "1.7", "Acme Widget", "2 board(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := printBoards(&buf, nil, ids); err != nil {
		t.Fatalf("printBoards(nil) error = %v", err)
	}
	if !strings.Contains(buf.String(), "no boards") {
		t.Errorf("empty output = %q", buf.String())
	}
}

type resetCall struct {
	gpioMask, flags uint32
}

// startBoard runs an emulated board on busDir.
func startBoard(t *testing.T, busDir string) (*devfifo.HAL, chan resetCall) {
	t.Helper()
	calls := make(chan resetCall, 1)

	b := device.NewBuilder(device.DefaultDeviceConfig())
	state := picoreset.NewState(func(gpioMask, flags uint32) {
		calls <- resetCall{gpioMask: gpioMask, flags: flags}
		runtime.Goexit()
	})
	picoreset.Configure(b, state, picoreset.DefaultConfig())
	dev, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	h := devfifo.New(busDir)
	stack := device.NewStack(dev, h)
	if err := stack.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { stack.Stop() })
	return h, calls
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetPin, resetDisableMSC, resetDisableBoot, resetFlags, resetDevice = -1, false, false, 0, ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands_FIFO(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	busDir := t.TempDir()
	h, calls := startBoard(t, busDir)
	common := []string{"--transport", "fifo", "--bus", busDir, "--timeout", "200ms"}

	out, err := execute(t, append([]string{"list"}, common...)...)
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	for _, want := range []string{h.UUID(), "2e8a:000a", "Raspberry Pi Pico", "12345678"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, append([]string{"reset", "--device", "serial=12345678", "--pin", "3", "--disable-msc"}, common...)...)
	if err != nil {
		t.Fatalf("reset error = %v", err)
	}
	if !strings.Contains(out, "rebooting "+h.UUID()) {
		t.Errorf("reset output = %q", out)
	}

	select {
	case call := <-calls:
		if call.gpioMask != 1<<3 || call.flags != 1 {
			t.Errorf("reset(%#x, %#x), want reset(0x8, 0x1)", call.gpioMask, call.flags)
		}
	case <-time.After(time.Second):
		t.Fatal("board was not reset")
	}
}

func TestCommands_NoMatch(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	busDir := t.TempDir()
	startBoard(t, busDir)

	_, err := execute(t, "reset", "--transport", "fifo", "--bus", busDir, "--timeout", "200ms", "--device", "serial=nope")
	if !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("reset error = %v, want ErrNoDevice", err)
	}
}
