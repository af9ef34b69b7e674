// Package phy provides Ethernet PHY management via MDIO.
// It supports IEEE 802.3 Clause 22 register access for configuring and
// monitoring physical layer transceivers and hosts chip specific drivers
// (see [Driver]) that bind to a [Device] by its PHY identifier.
package phy

import (
	"log/slog"
	"strconv"

	"github.com/soypat/miiphy"
	"github.com/soypat/miiphy/internal"
)

var errInvalidPhyAddr error = miiphy.ErrInvalidAddr

// Speed is the link speed resolved for a [Device].
type Speed uint8

const (
	SpeedUnknown Speed = iota
	Speed10
	Speed100
	Speed1000
)

// Mbps returns the speed in megabits per second or 0 if unknown.
func (s Speed) Mbps() int {
	switch s {
	case Speed10:
		return 10
	case Speed100:
		return 100
	case Speed1000:
		return 1000
	}
	return 0
}

func (s Speed) String() string {
	if s == SpeedUnknown {
		return "unknown"
	}
	return strconv.Itoa(s.Mbps()) + "Mbps"
}

// Device is the host side handle of a single PHY on an MDIO bus.
// It caches the link state resolved by the bound driver and exposes the
// generic Clause 22 sequences drivers delegate to.
//
// A Device is not safe for concurrent use. Drivers borrow it for the
// duration of one call and must not retain it.
type Device struct {
	mdio    MDIOBus
	phyaddr uint8
	// isClause45 is 0 for clause 22 devices and 1 for clause45 devices.
	isClause45 uint8

	id    uint32
	drv   *DriverInfo
	state DeviceState

	link       bool
	speed      Speed
	fullDuplex bool
	autoneg    bool
	anComplete bool
	pauseRx    bool
	pauseTx    bool
	supported  ANAR
	adv        ANAR
	lpAdv      ANAR
	logger
}

// ConfigureAs22 resets all state of device to be used as a Clause22 device. Does not do a software reset.
// Auto-negotiation is enabled and all 10/100 modes are advertised until [Device.Probe] reads the PHY abilities.
func (phy *Device) ConfigureAs22(mdio MDIOBus, phyAddr uint8) error {
	if phyAddr > 31 {
		return errInvalidPhyAddr
	} else if mdio == nil {
		return miiphy.ErrInvalidConfig
	}
	*phy = Device{
		mdio:      mdio,
		phyaddr:   phyAddr,
		autoneg:   true,
		supported: NewANAR().WithMaxSpeed(100),
		adv:       NewANAR().WithMaxSpeed(100),
		logger:    phy.logger,
	}
	return nil
}

// SetLogger sets the logger used by the device and the drivers bound to it.
func (phy *Device) SetLogger(log *slog.Logger) {
	phy.logger = logger{log: log}
}

// Logger returns the device logger. May be nil.
func (phy *Device) Logger() *slog.Logger { return phy.log }

// Probe reads the PHY identifier and the 10/100 abilities of the PHY.
// The advertisement is narrowed to the supported modes.
func (phy *Device) Probe() error {
	id, err := phy.ReadID()
	if err != nil {
		return err
	}
	bmsr, err := phy.BasicStatus()
	if err != nil {
		return err
	}
	phy.id = id
	phy.supported = bmsr.Abilities()
	phy.adv = phy.supported | (phy.adv &^ ANARSpeedMask &^ ANARSelector)
	if bmsr&BMSRANCap == 0 {
		phy.autoneg = false
	}
	phy.debug("phy:probe", internal.SlogPHYAddr(phy.phyaddr), internal.SlogID(id), internal.SlogReg("bmsr", uint16(bmsr)))
	return nil
}

// ReadID reads the 32 bit PHY identifier from registers 2 and 3 without caching it.
func (phy *Device) ReadID() (uint32, error) {
	id1, err := phy.ID1()
	if err != nil {
		return 0, err
	}
	id2, err := phy.ID2()
	if err != nil {
		return 0, err
	}
	return uint32(id1)<<16 | uint32(id2), nil
}

// ID returns the PHY identifier read by the last call to [Device.Probe].
func (phy *Device) ID() uint32 { return phy.id }

// PHYAddr returns the PHY address on the MDIO bus (0-31).
func (phy *Device) PHYAddr() uint8 {
	return phy.phyaddr
}

// IsClause45 returns true if the device uses Clause 45 MDIO addressing (extended register access).
func (phy *Device) IsClause45() bool {
	return phy.isClause45 == 1
}

// Driver returns the driver bound to the device or nil.
func (phy *Device) Driver() Driver {
	if phy.drv == nil {
		return nil
	}
	return phy.drv.Driver
}

// DriverInfo returns the descriptor of the driver bound to the device or nil.
func (phy *Device) DriverInfo() *DriverInfo { return phy.drv }

// State returns the coarse state of the device. It is driven by the host.
func (phy *Device) State() DeviceState { return phy.state }

// SetState sets the coarse state of the device.
func (phy *Device) SetState(s DeviceState) { phy.state = s }

// Link returns the link state as of the last [Device.UpdateLink].
func (phy *Device) Link() bool { return phy.link }

// Speed returns the resolved link speed.
func (phy *Device) Speed() Speed { return phy.speed }

// SetSpeed sets the resolved link speed. Used by drivers.
func (phy *Device) SetSpeed(s Speed) { phy.speed = s }

// FullDuplex returns true if the resolved duplex is full.
func (phy *Device) FullDuplex() bool { return phy.fullDuplex }

// SetDuplex sets the resolved duplex. Used by drivers.
func (phy *Device) SetDuplex(full bool) { phy.fullDuplex = full }

// IsAutonegEnabled returns true if the host configured the device for auto-negotiation.
func (phy *Device) IsAutonegEnabled() bool { return phy.autoneg }

// IsAutonegCompleted returns true if the last link update saw auto-negotiation complete.
func (phy *Device) IsAutonegCompleted() bool { return phy.anComplete }

// SetAutoneg enables or disables auto-negotiation. Takes effect on the next [Device.StartAneg].
func (phy *Device) SetAutoneg(enable bool) { phy.autoneg = enable }

// Advertising returns the modes advertised during auto-negotiation.
func (phy *Device) Advertising() ANAR { return phy.adv }

// SetAdvertising sets the advertisement. Modes not supported by the PHY are dropped.
// Takes effect on the next [Device.StartAneg].
func (phy *Device) SetAdvertising(a ANAR) {
	phy.adv = (a &^ ANARSpeedMask &^ ANARSelector) | (a & phy.supported & ANARSpeedMask) | ANARSelector8023
}

// LinkPartnerAdvertising returns the link partner advertisement read by [Device.ReadLPA].
func (phy *Device) LinkPartnerAdvertising() ANAR { return phy.lpAdv }

// Pause returns the flow control resolved on the last auto-negotiation.
func (phy *Device) Pause() (rx, tx bool) { return phy.pauseRx, phy.pauseTx }

// LinkMode returns the resolved link mode or LinkDown if there is no link.
func (phy *Device) LinkMode() LinkMode {
	if !phy.link {
		return LinkDown
	}
	switch phy.speed {
	case Speed10:
		if phy.fullDuplex {
			return Link10FDX
		}
		return Link10HDX
	case Speed100:
		if phy.fullDuplex {
			return Link100FDX
		}
		return Link100HDX
	case Speed1000:
		if phy.fullDuplex {
			return Link1000FDX
		}
		return Link1000HDX
	}
	return LinkDown
}

// Read reads a Clause 22 register. Bus failures are returned as [*IOError].
func (phy *Device) Read(reg uint16) (uint16, error) {
	v, err := phy.mdio.Read(phy.phyaddr, phy.isClause45, reg)
	if err != nil {
		return v, &IOError{Op: "read", Addr: phy.phyaddr, Reg: reg, Err: err}
	}
	return v, nil
}

// Write writes a Clause 22 register. Bus failures are returned as [*IOError].
func (phy *Device) Write(reg, value uint16) error {
	err := phy.mdio.Write(phy.phyaddr, phy.isClause45, reg, value)
	if err != nil {
		return &IOError{Op: "write", Addr: phy.phyaddr, Reg: reg, Err: err}
	}
	return nil
}

// modify performs a read-modify-write of reg clearing mask bits and setting set bits.
// The register is only written if the value changes. Returns true if a write occurred.
func (phy *Device) modify(reg, mask, set uint16) (changed bool, err error) {
	old, err := phy.Read(reg)
	if err != nil {
		return false, err
	}
	v := (old &^ mask) | set
	if v == old {
		return false, nil
	}
	return true, phy.Write(reg, v)
}

// BasicControl reads the Basic Mode Control Register (BMCR, register 0).
func (phy *Device) BasicControl() (BMCR, error) {
	ctl, err := phy.Read(AddrBMCR)
	return BMCR(ctl), err
}

// BasicStatus reads the Basic Mode Status Register (BMSR, register 1).
func (phy *Device) BasicStatus() (BMSR, error) {
	stat, err := phy.Read(AddrBMSR)
	return BMSR(stat), err
}

// ID1 reads the PHY Identifier 1 register (register 2), containing bits 3-18 of the OUI.
func (phy *Device) ID1() (uint16, error) {
	return phy.Read(regPhyId1)
}

// ID2 reads the PHY Identifier 2 register (register 3), containing bits 19-24 of the OUI and model/revision.
func (phy *Device) ID2() (uint16, error) {
	return phy.Read(regPhyId2)
}

// SetLoopback enables or disables PHY near-end loopback mode (BMCR bit 14).
// In loopback mode, TX data is routed back to RX internally through PCS/PMA/PMD.
func (phy *Device) SetLoopback(enable bool) error {
	var set uint16
	if enable {
		set = uint16(BMCRLoopback)
	}
	_, err := phy.modify(AddrBMCR, uint16(BMCRLoopback), set)
	return err
}

func (phy *Device) clearLinkState() {
	phy.link = false
	phy.anComplete = false
	phy.speed = SpeedUnknown
	phy.fullDuplex = false
	phy.pauseRx = false
	phy.pauseTx = false
	phy.lpAdv = 0
}
