package phy

import (
	"time"

	"github.com/soypat/miiphy"
	"github.com/soypat/miiphy/internal"
)

// Reset completion polling. IEEE 802.3 allows up to 500ms; some PHYs take a bit longer.
const (
	resetPollInterval = 50 * time.Millisecond
	resetMaxPolls     = 12
)

// UpdateLink refreshes the link and auto-negotiation complete state from BMSR.
//
// The link status bit is latched low: after a link drop the first read
// returns down even if the link has since recovered. With the cached link up
// a single read is done so drops between polls are reported. With the cached
// link down a first read showing link up is trusted, otherwise the register
// is read a second time to get the current state.
func (phy *Device) UpdateLink() error {
	// BMCR is read even if the link turns out to be down: a pending
	// auto-negotiation restart leaves a stale link bit in BMSR.
	ctl, err := phy.BasicControl()
	if err != nil {
		return err
	}
	if ctl&BMCRANRestart != 0 {
		phy.link = false
		phy.anComplete = false
		return nil
	}
	if !phy.link {
		status, err := phy.BasicStatus()
		if err != nil {
			return err
		}
		if status.LinkUp() {
			phy.setLinkStatus(status)
			return nil
		}
	}
	status, err := phy.BasicStatus()
	if err != nil {
		return err
	}
	phy.setLinkStatus(status)
	return nil
}

func (phy *Device) setLinkStatus(status BMSR) {
	phy.link = status.LinkUp()
	phy.anComplete = status.AutoNegotiationComplete()
}

// ReadLPA reads the link partner advertisement. The advertisement is cleared
// if auto-negotiation is disabled or has not completed.
func (phy *Device) ReadLPA() error {
	if !phy.autoneg || !phy.anComplete {
		phy.lpAdv = 0
		return nil
	}
	lpa, err := phy.Read(AddrANLPAR)
	if err != nil {
		return err
	}
	phy.lpAdv = ANAR(lpa)
	return nil
}

// ResolveAnegLinkmode resolves speed, duplex and pause from the modes common
// to the local and link partner advertisements. Call only after auto-negotiation completed.
func (phy *Device) ResolveAnegLinkmode() {
	common := phy.adv & phy.lpAdv
	mode := common.LinkMode()
	switch mode.SpeedMbps() {
	case 100:
		phy.speed = Speed100
	case 10:
		phy.speed = Speed10
	default:
		phy.trace("phy:aneg-no-common", internal.SlogReg("adv", uint16(phy.adv)), internal.SlogReg("lpa", uint16(phy.lpAdv)))
		return
	}
	phy.fullDuplex = mode.IsFullDuplex()
	if phy.fullDuplex {
		phy.pauseRx, phy.pauseTx = phy.adv.ResolvePause(phy.lpAdv)
	} else {
		phy.pauseRx, phy.pauseTx = false, false
	}
}

// GenphySoftReset issues a BMCR software reset and waits for the reset bit
// to self-clear. Auto-negotiation is restarted with the reset when enabled.
// Returns [miiphy.ErrTimeout] if the PHY does not leave reset in time.
func (phy *Device) GenphySoftReset() error {
	set := BMCRReset
	if phy.autoneg {
		set |= BMCRANRestart
	}
	_, err := phy.modify(AddrBMCR, 0, uint16(set))
	if err != nil {
		return err
	}
	phy.clearLinkState()
	for i := 0; i < resetMaxPolls; i++ {
		ctl, err := phy.BasicControl()
		if err != nil {
			return err
		}
		if ctl&BMCRReset == 0 {
			return nil
		}
		time.Sleep(resetPollInterval)
	}
	phy.logerr("phy:reset-timeout", internal.SlogPHYAddr(phy.phyaddr))
	return miiphy.ErrTimeout
}

// GenphySuspend powers down the PHY.
func (phy *Device) GenphySuspend() error {
	_, err := phy.modify(AddrBMCR, 0, uint16(BMCRPowerDown))
	return err
}

// GenphyResume powers up the PHY.
func (phy *Device) GenphyResume() error {
	_, err := phy.modify(AddrBMCR, uint16(BMCRPowerDown), 0)
	return err
}

// InitHW brings the PHY to a known state: it resets the PHY through the bound
// driver's SoftReset, or with [Device.GenphySoftReset] if no driver is bound,
// and clears the cached link state.
func (phy *Device) InitHW() (err error) {
	if drv := phy.Driver(); drv != nil {
		err = drv.SoftReset(phy)
	} else {
		err = phy.GenphySoftReset()
	}
	phy.clearLinkState()
	return err
}

// StartAneg applies the link configuration to the PHY. With auto-negotiation
// enabled the advertisement is written and auto-negotiation restarted when
// needed, otherwise the speed and duplex set on the device are forced.
func (phy *Device) StartAneg() error {
	if !phy.autoneg {
		return phy.setupForced()
	}
	changed, err := phy.modify(AddrANAR, uint16(ANARSpeedMask|ANARPauseMask|ANARSelector), uint16(phy.adv))
	if err != nil {
		return err
	}
	ctl, err := phy.BasicControl()
	if err != nil {
		return err
	}
	if !changed && ctl&BMCRANEnable != 0 && ctl&BMCRIsolate == 0 {
		return nil
	}
	// Restart auto-negotiation, also takes PHY out of isolation.
	ctl |= BMCRANEnable | BMCRANRestart
	ctl &^= BMCRIsolate
	phy.debug("phy:aneg-restart", internal.SlogPHYAddr(phy.phyaddr), internal.SlogReg("adv", uint16(phy.adv)))
	return phy.Write(AddrBMCR, uint16(ctl))
}

// setupForced disables auto-negotiation and forces the speed and duplex set on the device.
//
// Inspired by drivers/net/phy/phy_device.c
func (phy *Device) setupForced() error {
	var ctl BMCR
	switch phy.speed {
	case Speed1000:
		ctl |= BMCRSpeed1000
	case Speed100:
		ctl |= BMCRSpeed100
	case Speed10, SpeedUnknown:
		// No speed bits = 10Mbps
	default:
		return miiphy.ErrUnsupported
	}
	if phy.fullDuplex {
		ctl |= BMCRFullDuplex
	}
	phy.pauseRx, phy.pauseTx = false, false
	// Note: BMCRANEnable is NOT set, disabling auto-negotiation
	_, err := phy.modify(AddrBMCR, ^uint16(BMCRLoopback|BMCRIsolate|BMCRPowerDown), uint16(ctl))
	return err
}
