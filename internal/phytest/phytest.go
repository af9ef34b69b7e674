// Package phytest provides a simulated Clause 22 PHY register file for tests.
package phytest

import (
	"errors"
	"sync"
)

// Register addresses and bits used by the simulation. Kept local so the
// simulation does not depend on the code under test.
const (
	RegBMCR   = 0x00
	RegBMSR   = 0x01
	RegID1    = 0x02
	RegID2    = 0x03
	RegANAR   = 0x04
	RegANLPAR = 0x05

	bmcrFullDuplex = 0x0100
	bmcrANRestart  = 0x0200
	bmcrIsolate    = 0x0400
	bmcrPowerDown  = 0x0800
	bmcrANEnable   = 0x1000
	bmcrSpeed100   = 0x2000
	bmcrReset      = 0x8000

	bmsrLinkStatus = 0x0004
	bmsrANComplete = 0x0020

	anar10Half  = 0x0020
	anar10Full  = 0x0040
	anar100Half = 0x0080
	anar100Full = 0x0100
	anarAck     = 0x4000

	// Power on defaults of a 10/100 PHY with auto-negotiation.
	DefaultBMCR = bmcrANEnable | bmcrSpeed100 | bmcrFullDuplex
	DefaultBMSR = 0x7809 // 10/100 half/full, AN capable, extended capabilities.
	DefaultANAR = 0x01e1 // 10/100 half/full, 802.3 selector.
)

// ErrClause45 is returned for Clause 45 accesses, which the simulation does not support.
var ErrClause45 = errors.New("phytest: clause 45 access")

// Access is a recorded register access.
type Access struct {
	Write bool
	Reg   uint16
	Value uint16
}

// PHY simulates a single Clause 22 PHY. It implements the MDIO bus interface
// and answers only at its address; other addresses read as 0xffff.
//
// Speed and duplex resolved by auto-negotiation are reflected in the control
// register. PHY methods are safe for concurrent use.
type PHY struct {
	mu   sync.Mutex
	addr uint8
	regs [32]uint16
	// cable is true when a link partner is connected.
	cable   bool
	partner uint16
	// latchedDown makes the next BMSR read report link down.
	latchedDown bool
	resetPolls  int
	resetLeft   int
	failRead    map[uint16]fault
	failWrite   map[uint16]fault
	log         []Access
}

// New returns a PHY at addr with identifier id and power on register defaults.
func New(addr uint8, id uint32) *PHY {
	p := &PHY{addr: addr}
	p.regs[RegID1] = uint16(id >> 16)
	p.regs[RegID2] = uint16(id)
	p.defaults()
	return p
}

func (p *PHY) defaults() {
	id1, id2 := p.regs[RegID1], p.regs[RegID2]
	p.regs = [32]uint16{}
	p.regs[RegID1], p.regs[RegID2] = id1, id2
	p.regs[RegBMCR] = DefaultBMCR
	p.regs[RegBMSR] = DefaultBMSR
	p.regs[RegANAR] = DefaultANAR
	p.resolve()
}

// SetResetPolls sets the number of control register reads during which the
// reset bit stays set after a software reset.
func (p *PHY) SetResetPolls(n int) {
	p.mu.Lock()
	p.resetPolls = n
	p.mu.Unlock()
}

// Connect connects a link partner advertising partner (ANAR bit layout).
func (p *PHY) Connect(partner uint16) {
	p.mu.Lock()
	p.cable = true
	p.partner = partner
	p.resolve()
	p.mu.Unlock()
}

// Disconnect removes the link partner. The link status bit latches low.
func (p *PHY) Disconnect() {
	p.mu.Lock()
	p.cable = false
	p.latchedDown = true
	p.resolve()
	p.mu.Unlock()
}

// Set sets a register without recording the access.
func (p *PHY) Set(reg, value uint16) {
	p.mu.Lock()
	p.regs[reg&31] = value
	p.mu.Unlock()
}

// Get returns a register without recording the access or triggering side effects.
func (p *PHY) Get(reg uint16) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regs[reg&31]
}

type fault struct {
	skip int
	err  error
}

// FailRead makes reads of reg fail with err. A nil err clears the fault.
func (p *PHY) FailRead(reg uint16, err error) {
	p.FailReadAfter(reg, 0, err)
}

// FailReadAfter lets skip reads of reg succeed and makes the following ones fail with err.
func (p *PHY) FailReadAfter(reg uint16, skip int, err error) {
	p.mu.Lock()
	p.failRead = setFault(p.failRead, reg, skip, err)
	p.mu.Unlock()
}

// FailWrite makes writes of reg fail with err. A nil err clears the fault.
func (p *PHY) FailWrite(reg uint16, err error) {
	p.mu.Lock()
	p.failWrite = setFault(p.failWrite, reg, 0, err)
	p.mu.Unlock()
}

func setFault(m map[uint16]fault, reg uint16, skip int, err error) map[uint16]fault {
	if err == nil {
		delete(m, reg)
		return m
	}
	if m == nil {
		m = make(map[uint16]fault)
	}
	m[reg] = fault{skip: skip, err: err}
	return m
}

// check returns the error of an access to reg, consuming skips.
func check(m map[uint16]fault, reg uint16) error {
	f, ok := m[reg]
	if !ok {
		return nil
	} else if f.skip > 0 {
		f.skip--
		m[reg] = f
		return nil
	}
	return f.err
}

// Log returns a copy of the accesses recorded since the last ResetLog.
// Failed accesses are recorded too.
func (p *PHY) Log() []Access {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Access(nil), p.log...)
}

// ResetLog clears the recorded accesses.
func (p *PHY) ResetLog() {
	p.mu.Lock()
	p.log = p.log[:0]
	p.mu.Unlock()
}

// Reads returns the number of recorded reads of reg.
func (p *PHY) Reads(reg uint16) (n int) {
	for _, a := range p.Log() {
		if !a.Write && a.Reg == reg {
			n++
		}
	}
	return n
}

// Writes returns the values written to reg in order.
func (p *PHY) Writes(reg uint16) (vals []uint16) {
	for _, a := range p.Log() {
		if a.Write && a.Reg == reg {
			vals = append(vals, a.Value)
		}
	}
	return vals
}

// Read implements the MDIO bus read.
func (p *PHY) Read(phyAddr, devAddr uint8, regAddr uint16) (uint16, error) {
	if devAddr != 0 {
		return 0xffff, ErrClause45
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if phyAddr != p.addr {
		return 0xffff, nil
	}
	p.log = append(p.log, Access{Reg: regAddr})
	if err := check(p.failRead, regAddr); err != nil {
		return 0xffff, err
	}
	regAddr &= 31
	v := p.regs[regAddr]
	switch regAddr {
	case RegBMCR:
		if p.resetLeft > 0 {
			p.resetLeft--
			v |= bmcrReset
		}
	case RegBMSR:
		if p.latchedDown {
			p.latchedDown = false
			v &^= bmsrLinkStatus
		}
	}
	return v, nil
}

// Write implements the MDIO bus write.
func (p *PHY) Write(phyAddr, devAddr uint8, regAddr, value uint16) error {
	if devAddr != 0 {
		return ErrClause45
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if phyAddr != p.addr {
		return nil
	}
	p.log = append(p.log, Access{Write: true, Reg: regAddr, Value: value})
	if err := check(p.failWrite, regAddr); err != nil {
		return err
	}
	regAddr &= 31
	switch regAddr {
	case RegBMSR, RegID1, RegID2, RegANLPAR:
		return nil // Read only.
	case RegBMCR:
		if value&bmcrReset != 0 {
			p.defaults()
			p.resetLeft = p.resetPolls
			return nil
		}
		wasDown := !p.linkUp()
		p.regs[RegBMCR] = value &^ bmcrANRestart
		if value&(bmcrPowerDown|bmcrIsolate) != 0 && !wasDown {
			p.latchedDown = true
		}
	default:
		p.regs[regAddr] = value
	}
	p.resolve()
	return nil
}

func (p *PHY) linkUp() bool {
	return p.cable && p.regs[RegBMCR]&(bmcrPowerDown|bmcrIsolate) == 0
}

// resolve recomputes status, partner ability and the resolved mode in the
// control register from the cable state and configuration.
func (p *PHY) resolve() {
	bmcr := p.regs[RegBMCR]
	bmsr := p.regs[RegBMSR] &^ (bmsrLinkStatus | bmsrANComplete)
	p.regs[RegANLPAR] = 0
	if p.linkUp() {
		if bmcr&bmcrANEnable == 0 {
			bmsr |= bmsrLinkStatus
		} else if speed100, full, ok := highestCommon(p.regs[RegANAR] & p.partner); ok {
			bmsr |= bmsrLinkStatus | bmsrANComplete
			p.regs[RegANLPAR] = p.partner | anarAck
			bmcr &^= bmcrSpeed100 | bmcrFullDuplex
			if speed100 {
				bmcr |= bmcrSpeed100
			}
			if full {
				bmcr |= bmcrFullDuplex
			}
		}
	}
	p.regs[RegBMCR] = bmcr
	p.regs[RegBMSR] = bmsr
}

func highestCommon(common uint16) (speed100, full, ok bool) {
	switch {
	case common&anar100Full != 0:
		return true, true, true
	case common&anar100Half != 0:
		return true, false, true
	case common&anar10Full != 0:
		return false, true, true
	case common&anar10Half != 0:
		return false, false, true
	}
	return false, false, false
}
