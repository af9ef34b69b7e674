// Package asix implements the PHY driver for the internal 10/100 PHY of the
// Asix Electronics AX88772A USB Ethernet controller.
package asix

import (
	"log/slog"

	"github.com/soypat/miiphy/internal"
	"github.com/soypat/miiphy/phy"
)

// PhyIDAX88772A is the PHY identifier of the AX88772A internal PHY.
const PhyIDAX88772A uint32 = 0x003b1861

// The AX88772A reports the resolved speed and duplex in the control register
// instead of a vendor status register. These bits are only meaningful for this PHY.
const (
	regBMCR        = 0x00
	bmcrSpeed100   = 0x2000
	bmcrFullDuplex = 0x0100
)

var _ phy.Driver = Driver{} // compile time guarantee of interface implementation.

// Info is the descriptor of the AX88772A driver.
var Info = &phy.DriverInfo{
	Name:   "Asix Electronics AX88772A",
	Flags:  phy.FlagIsInternal,
	Table:  []phy.DeviceID{{ID: PhyIDAX88772A, Mask: 0xffffffff}},
	Driver: Driver{},
}

// Register adds the AX88772A driver to r.
func Register(r *phy.Registry) error {
	return r.Register(Info)
}

// Driver is the AX88772A PHY driver. It is stateless.
type Driver struct{}

// Match reports whether dev is an AX88772A. The identifier must match in all 32 bits.
func (Driver) Match(dev *phy.Device) bool {
	return dev.ID() == PhyIDAX88772A
}

// ReadStatus refreshes the link state of dev. When the link is up speed and
// duplex are decoded from the control register, the link partner
// advertisement is read and, if auto-negotiation completed, the negotiated
// link mode is resolved.
func (Driver) ReadStatus(dev *phy.Device) error {
	// The link refresh reads BMCR for a pending AN restart. On link down
	// nothing else is read.
	err := dev.UpdateLink()
	if err != nil {
		return err
	}
	if !dev.Link() {
		return nil
	}
	ctl, err := dev.Read(regBMCR)
	if err != nil {
		return err
	}
	if ctl&bmcrSpeed100 != 0 {
		dev.SetSpeed(phy.Speed100)
	} else {
		dev.SetSpeed(phy.Speed10)
	}
	dev.SetDuplex(ctl&bmcrFullDuplex != 0)

	err = dev.ReadLPA()
	if err != nil {
		return err
	}
	if dev.IsAutonegEnabled() && dev.IsAutonegCompleted() {
		dev.ResolveAnegLinkmode()
	}
	return nil
}

// Suspend powers down the PHY.
func (Driver) Suspend(dev *phy.Device) error {
	return dev.GenphySuspend()
}

// Resume powers up the PHY.
func (Driver) Resume(dev *phy.Device) error {
	return dev.GenphyResume()
}

// SoftReset clears the control register, taking the PHY out of power down,
// isolation and loopback, and then performs the generic software reset.
func (Driver) SoftReset(dev *phy.Device) error {
	err := dev.Write(regBMCR, 0)
	if err != nil {
		return err
	}
	return dev.GenphySoftReset()
}

// LinkChangeNotify reinitializes the PHY and restarts auto-negotiation when
// the device lost its link. Failures are logged and otherwise ignored: the
// host polls the device again and the hook runs on the next state change.
func (Driver) LinkChangeNotify(dev *phy.Device) {
	if dev.State() != phy.StateNoLink {
		return
	}
	log := dev.Logger()
	if err := dev.InitHW(); err != nil {
		internal.LogAttrs(log, slog.LevelDebug, "ax88772a:init-hw", internal.SlogPHYAddr(dev.PHYAddr()), internal.SlogErr(err))
	}
	if err := dev.StartAneg(); err != nil {
		internal.LogAttrs(log, slog.LevelDebug, "ax88772a:start-aneg", internal.SlogPHYAddr(dev.PHYAddr()), internal.SlogErr(err))
	}
}
