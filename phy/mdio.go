package phy

import (
	"errors"
	"strconv"
)

// MDIOBus is a HAL for MDIO bus access supporting both Clause 22 and Clause 45 devices.
// Implementations should use devaddr to select the framing:
//   - devaddr=0: Clause 22 framing (devaddr ignored in transaction)
//   - devaddr>=1: Clause 45 framing (PMA/PMD=1, WIS=2, PCS=3, PHY XS=4, DTE XS=5, AN=7)
//
// Register address range: Clause 22 uses 0-31, Clause 45 uses 0-65535.
// Invalid combinations of devaddr and regAddr may or may not return an error
// depending on the implementation or result in undefined behavior.
type MDIOBus interface {
	// Read reads a 16-bit register from the PHY.
	Read(phyAddr, devAddr uint8, regAddr uint16) (value uint16, err error)
	// Write writes a 16-bit value to a PHY register.
	Write(phyAddr, devAddr uint8, regAddr, value uint16) error
}

// ErrIO matches every [IOError] when used as target in [errors.Is].
var ErrIO = errors.New("phy: bus io")

// IOError is returned by [Device] register accesses when the MDIO bus fails.
// The underlying bus error is kept as is and exposed through Unwrap.
type IOError struct {
	Op   string // "read" or "write"
	Addr uint8  // PHY address on the bus.
	Reg  uint16 // Register address.
	Err  error
}

func (e *IOError) Error() string {
	return "phy: " + e.Op + " addr=" + strconv.Itoa(int(e.Addr)) + " reg=0x" + strconv.FormatUint(uint64(e.Reg), 16) + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }
