package usbid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `# USB IDs
#	Version: test

1209  Generic
	0001  pid.codes Test PID
	0002  Another
		00  interface line
2e8a  Raspberry Pi (Trading) Ltd
	000a  Pico SDK CDC UART
C 00  (Defined at Interface level)
	01  Audio
`

func TestParse(t *testing.T) {
	db := NewWithPaths(nil)
	if err := db.Parse(strings.NewReader(sample)); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		vid, pid uint16
		vendor   string
		product  string
	}{
		{0x1209, 0x0001, "Generic", "pid.codes Test PID"},
		{0x1209, 0x0002, "Generic", "Another"},
		{0x2E8A, 0x000A, "Raspberry Pi (Trading) Ltd", "Pico SDK CDC UART"},
		{0x2E8A, 0x0003, "Raspberry Pi (Trading) Ltd", "RP2 Boot"},
		{0x1234, 0x0001, "", ""},
	}
	for _, tt := range tests {
		if got := db.Vendor(tt.vid); got != tt.vendor {
			t.Errorf("Vendor(%04x) = %q, want %q", tt.vid, got, tt.vendor)
		}
		if got := db.Product(tt.vid, tt.pid); got != tt.product {
			t.Errorf("Product(%04x, %04x) = %q, want %q", tt.vid, tt.pid, got, tt.product)
		}
	}

	// Class section lines must not be taken as products of the last vendor.
	if got := db.Product(0x2E8A, 0x0001); got != "" {
		t.Errorf("class line parsed as product %q", got)
	}
}

func TestBuiltinNames(t *testing.T) {
	db := NewWithPaths([]string{filepath.Join(t.TempDir(), "missing.ids")})
	if err := db.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if db.Source() != "" {
		t.Errorf("Source() = %q, want empty", db.Source())
	}
	if got := db.Describe(0x2E8A, 0x000A); got != "Raspberry Pi Pico" {
		t.Errorf("Describe() = %q", got)
	}
	if got := db.Describe(0xCAFE, 0x0001); got != "cafe 0001" {
		t.Errorf("Describe() unknown = %q", got)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usb.ids")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	db := NewWithPaths([]string{filepath.Join(dir, "missing.ids"), path})
	if err := db.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if db.Source() != path {
		t.Errorf("Source() = %q, want %q", db.Source(), path)
	}
	if got := db.Vendor(0x1209); got != "Generic" {
		t.Errorf("Vendor() = %q", got)
	}

	// Idempotent: a second load does not re-read a changed file.
	if err := os.WriteFile(path, []byte("1209  Changed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := db.Load(); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if got := db.Vendor(0x1209); got != "Generic" {
		t.Errorf("Vendor() after reload = %q, want Generic", got)
	}
}

func TestSplitEntry(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
	}{
		{"1209  Generic", true},
		{"zzzz  Bad", false},
		{"12", false},
		{"1209x Name", false},
		{"1209      ", false},
	}
	for _, tt := range tests {
		if _, _, ok := splitEntry(tt.line); ok != tt.ok {
			t.Errorf("splitEntry(%q) ok = %v, want %v", tt.line, ok, tt.ok)
		}
	}
}
