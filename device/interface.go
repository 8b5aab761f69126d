package device

import (
	"sync"

	"github.com/ardnew/picoreset/pkg"
)

// AltSetting describes one alternate setting of an interface.
type AltSetting struct {
	Class    uint8       // bInterfaceClass
	SubClass uint8       // bInterfaceSubClass
	Protocol uint8       // bInterfaceProtocol
	String   StringIndex // iInterface, 0 for none
}

// Interface is one interface of the device configuration.
type Interface struct {
	Number InterfaceNumber

	// Alternate settings - fixed-size array for zero allocation
	alts     [MaxAltSettings]AltSetting
	altCount int

	current uint8
	mutex   sync.RWMutex
}

// addAltSetting appends an alternate setting and returns its number.
func (i *Interface) addAltSetting(alt AltSetting) (uint8, error) {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	if i.altCount >= MaxAltSettings {
		return 0, pkg.ErrNoMemory
	}
	i.alts[i.altCount] = alt
	i.altCount++
	return uint8(i.altCount - 1), nil
}

// NumAltSettings returns the number of alternate settings.
func (i *Interface) NumAltSettings() int {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return i.altCount
}

// AltSetting returns alternate setting n.
func (i *Interface) AltSetting(n uint8) (AltSetting, bool) {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	if int(n) >= i.altCount {
		return AltSetting{}, false
	}
	return i.alts[n], true
}

// CurrentAltSetting returns the active alternate setting number.
func (i *Interface) CurrentAltSetting() uint8 {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return i.current
}

// setAlternate selects alternate setting n.
func (i *Interface) setAlternate(n uint8) error {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	if int(n) >= i.altCount {
		return pkg.ErrInvalidRequest
	}
	i.current = n
	return nil
}

// Function is a group of contiguous interfaces sharing one class triple.
type Function struct {
	Class    uint8
	SubClass uint8
	Protocol uint8

	first InterfaceNumber
	count int
}

// FirstInterface returns the lowest interface number of the function.
func (f *Function) FirstInterface() InterfaceNumber {
	return f.first
}

// NumInterfaces returns the number of interfaces in the function.
func (f *Function) NumInterfaces() int {
	return f.count
}

// needsIAD reports whether the function is announced with an interface
// association descriptor.
func (f *Function) needsIAD() bool {
	return f.count > 1
}
