// Package usbid names USB vendors and products from the usb.ids database.
//
// Boards this tool talks to are always named, even without a database on
// the system:
//
//	db := usbid.New()
//	db.Load()
//	fmt.Println(db.Describe(0x2E8A, 0x000A)) // Raspberry Pi Pico
package usbid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultPaths lists the standard locations for the USB ID database.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// VendorRaspberryPi is the Raspberry Pi vendor ID.
const VendorRaspberryPi = 0x2E8A

// builtinProducts covers the RP2040/RP2350 identities seen before and after
// a reset.
var builtinProducts = map[uint16]string{
	0x0003: "RP2 Boot",
	0x0005: "Pico (MicroPython)",
	0x000A: "Pico",
	0x000F: "RP2350 Boot",
}

// Database caches vendor and product names.
type Database struct {
	vendors  map[uint16]string // VID -> vendor name
	products map[uint32]string // (VID<<16)|PID -> product name
	source   string
	loaded   bool
	mu       sync.RWMutex
	paths    []string
}

// New creates a database that searches DefaultPaths.
func New() *Database {
	return NewWithPaths(DefaultPaths)
}

// NewWithPaths creates a database that searches paths in order.
func NewWithPaths(paths []string) *Database {
	db := &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
		paths:    paths,
	}
	db.vendors[VendorRaspberryPi] = "Raspberry Pi"
	for pid, name := range builtinProducts {
		db.products[productKey(VendorRaspberryPi, pid)] = name
	}
	return db
}

func productKey(vid, pid uint16) uint32 {
	return uint32(vid)<<16 | uint32(pid)
}

// Load reads the first database file found. It is idempotent. A missing
// database is not an error: lookups fall back to the built-in names.
func (db *Database) Load() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.loaded {
		return nil
	}
	db.loaded = true

	for _, path := range db.paths {
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		if err := db.parse(f); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		db.source = path
		return nil
	}
	return nil
}

// Parse merges the entries of a usb.ids stream into the database.
func (db *Database) Parse(r io.Reader) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.parse(r)
}

// parse reads vendor lines ("vvvv  Name") and their product lines
// ("\tpppp  Name"). Interface lines and the class sections that follow the
// vendor list end the current vendor.
func (db *Database) parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	var vid uint16
	inVendor := false

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		if strings.HasPrefix(line, "\t\t") {
			continue
		}
		if line[0] == '\t' {
			if !inVendor {
				continue
			}
			if id, name, ok := splitEntry(line[1:]); ok {
				db.products[productKey(vid, id)] = name
			}
			continue
		}

		id, name, ok := splitEntry(line)
		inVendor = ok
		if ok {
			vid = id
			db.vendors[vid] = name
		}
	}
	return scanner.Err()
}

// splitEntry splits "xxxx  Name" into its hex ID and name.
func splitEntry(line string) (uint16, string, bool) {
	if len(line) < 6 || line[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(line[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	name := strings.TrimSpace(line[5:])
	if name == "" {
		return 0, "", false
	}
	return uint16(id), name, true
}

// Vendor returns the vendor name, or "" if unknown.
func (db *Database) Vendor(vid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.vendors[vid]
}

// Product returns the product name, or "" if unknown.
func (db *Database) Product(vid, pid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.products[productKey(vid, pid)]
}

// Describe returns "Vendor Product", falling back to the hex IDs for the
// unknown parts.
func (db *Database) Describe(vid, pid uint16) string {
	vendor := db.Vendor(vid)
	if vendor == "" {
		vendor = fmt.Sprintf("%04x", vid)
	}
	product := db.Product(vid, pid)
	if product == "" {
		product = fmt.Sprintf("%04x", pid)
	}
	return vendor + " " + product
}

// Source returns the path of the loaded database file, or "" when only the
// built-in names are available.
func (db *Database) Source() string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.source
}
