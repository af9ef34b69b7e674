package phy

import (
	"errors"

	"github.com/soypat/miiphy"
)

var _ MDIOBus = (*MDIOBitBang)(nil) // compile time guarantee of interface implementation.

// Management frame fields, IEEE 802.3 Clause 22.2.4.5 and Clause 45.3.
const (
	preambleBits = 32
	headerBits   = 14 // ST(2) OP(2) PHYAD(5) REGAD/DEVAD(5)

	stClause22 = 0b01
	stClause45 = 0b00

	opRead      = 0b10
	opWrite     = 0b01
	opC45Addr   = 0b00
	opC45Write  = 0b01
	opC45Read   = 0b11
	taStation   = 0b10 // Turnaround driven by the station on writes.
	dataBits    = 16
	flushCycles = 32
)

var errTurnaround = errors.New("mdio: turnaround not driven low")

// MDIOBitBang is a software MDIO management station. It clocks management
// frames through three callbacks:
//   - sendBit drives MDIO to bit and pulses MDC.
//   - getBit pulses MDC and samples MDIO.
//   - setDir makes MDIO an output (true) or an input (false).
//
// MDIO must have a pull-up so that a PHY that does not answer reads as ones.
// An MDIOBitBang is not safe for concurrent use.
type MDIOBitBang struct {
	sendBit func(bit bool)
	getBit  func() bool
	setDir  func(output bool)
}

// Configure sets the pin callbacks and releases the bus.
func (m *MDIOBitBang) Configure(sendBit func(bit bool), getBit func() bool, setDir func(output bool)) error {
	if sendBit == nil || getBit == nil || setDir == nil {
		return miiphy.ErrInvalidConfig
	}
	*m = MDIOBitBang{sendBit: sendBit, getBit: getBit, setDir: setDir}
	m.setDir(true)
	return nil
}

// Read reads a register. A non-zero devAddr selects Clause 45 framing, which
// takes an address frame followed by a read frame.
func (m *MDIOBitBang) Read(phyAddr, devAddr uint8, regAddr uint16) (uint16, error) {
	if err := m.check(phyAddr); err != nil {
		return 0xffff, err
	}
	if devAddr == 0 {
		return m.readFrame(frameHeader(stClause22, opRead, phyAddr, uint8(regAddr)))
	}
	m.writeFrame(frameHeader(stClause45, opC45Addr, phyAddr, devAddr), regAddr)
	return m.readFrame(frameHeader(stClause45, opC45Read, phyAddr, devAddr))
}

// Write writes a register. A non-zero devAddr selects Clause 45 framing.
// MDIO has no acknowledge on writes: a missing PHY goes unnoticed.
func (m *MDIOBitBang) Write(phyAddr, devAddr uint8, regAddr, value uint16) error {
	if err := m.check(phyAddr); err != nil {
		return err
	}
	if devAddr == 0 {
		m.writeFrame(frameHeader(stClause22, opWrite, phyAddr, uint8(regAddr)), value)
		return nil
	}
	m.writeFrame(frameHeader(stClause45, opC45Addr, phyAddr, devAddr), regAddr)
	m.writeFrame(frameHeader(stClause45, opC45Write, phyAddr, devAddr), value)
	return nil
}

func (m *MDIOBitBang) check(phyAddr uint8) error {
	if phyAddr > 31 {
		return errInvalidPhyAddr
	} else if m.sendBit == nil {
		return miiphy.ErrInvalidConfig
	}
	return nil
}

// frameHeader packs the leading fields of a management frame, MSB first.
func frameHeader(st, op, phyAddr, reg uint8) uint16 {
	return uint16(st)<<12 | uint16(op)<<10 | uint16(phyAddr&0x1f)<<5 | uint16(reg&0x1f)
}

func (m *MDIOBitBang) startFrame(hdr uint16) {
	m.setDir(true)
	for range preambleBits {
		m.sendBit(true)
	}
	m.shiftOut(uint32(hdr), headerBits)
}

func (m *MDIOBitBang) writeFrame(hdr, data uint16) {
	m.startFrame(hdr)
	m.shiftOut(taStation<<dataBits|uint32(data), 2+dataBits)
	m.setDir(false)
	m.getBit() // Idle cycle.
}

func (m *MDIOBitBang) readFrame(hdr uint16) (uint16, error) {
	m.startFrame(hdr)
	m.setDir(false)
	if m.getBit() {
		// Nobody answered. Clock the rest of the frame out so a slow PHY
		// sees the bus idle before the next preamble.
		for range flushCycles {
			m.getBit()
		}
		return 0xffff, errTurnaround
	}
	v := m.shiftIn(dataBits)
	m.getBit() // Idle cycle.
	return v, nil
}

func (m *MDIOBitBang) shiftOut(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		m.sendBit(v>>i&1 != 0)
	}
}

func (m *MDIOBitBang) shiftIn(n int) (v uint16) {
	for range n {
		v <<= 1
		if m.getBit() {
			v |= 1
		}
	}
	return v
}
