package phy

import (
	"errors"
	"time"

	"github.com/soypat/miiphy"
)

// ErrNoPHY is returned by [FindClause22PHYs] when no address answers.
var ErrNoPHY = errors.New("phy: no PHY on bus")

// scanDelay separates consecutive probes of a bus scan.
const scanDelay = 150 * time.Microsecond

// FindClause22PHYs probes the 32 Clause 22 addresses of mdio and writes the
// addresses that answer to dst, which must hold 32 entries. An address
// answers when its status register reads neither all ones (bus pulled up,
// nobody driving) nor all zeros. Read errors count as no answer.
func FindClause22PHYs(mdio MDIOBus, dst []uint8) (n int, err error) {
	if len(dst) < 32 {
		return 0, miiphy.ErrShortBuffer
	}
	for addr := range uint8(32) {
		if addr > 0 {
			time.Sleep(scanDelay)
		}
		bmsr, err := mdio.Read(addr, 0, AddrBMSR)
		if err != nil || bmsr == 0xffff || bmsr == 0 {
			continue
		}
		dst[n] = addr
		n++
	}
	if n == 0 {
		return 0, ErrNoPHY
	}
	return n, nil
}

// ReadID reads the 32 bit identifier of the Clause 22 PHY at phyAddr without creating a [Device].
func ReadID(mdio MDIOBus, phyAddr uint8) (uint32, error) {
	if phyAddr > 31 {
		return 0, errInvalidPhyAddr
	}
	var dev Device
	err := dev.ConfigureAs22(mdio, phyAddr)
	if err != nil {
		return 0, err
	}
	return dev.ReadID()
}
