package phytest

// Wire is the PHY end of a bit-banged MDIO line. Its SendBit, GetBit and
// SetDir methods are the pin callbacks of a software MDIO station; Wire
// decodes the Clause 22 management frames clocked through them and serves
// them from the simulated register file. Clause 45 frames are not answered.
//
// Wire is not safe for concurrent use. The PHY behind it is.
type Wire struct {
	phy *PHY
	// ones counts consecutive preamble bits while idle.
	ones    int
	inFrame bool
	frame   uint32
	n       int
	// reply holds the bits the PHY drives on a read, turnaround included.
	reply []bool
}

// Wire returns a new MDIO line attached to p.
func (p *PHY) Wire() *Wire {
	return &Wire{phy: p}
}

// SetDir is called when the station changes the MDIO direction. Taking the
// line back as output ends any reply in progress.
func (w *Wire) SetDir(output bool) {
	if output {
		w.reply = w.reply[:0]
	}
}

// GetBit returns the bit the PHY drives, or one (pull-up) when it does not drive.
func (w *Wire) GetBit() bool {
	if len(w.reply) == 0 {
		return true
	}
	b := w.reply[0]
	w.reply = w.reply[1:]
	return b
}

// SendBit receives a bit driven by the station.
func (w *Wire) SendBit(b bool) {
	if !w.inFrame {
		switch {
		case b:
			w.ones++
		case w.ones >= 32:
			// First start bit after a full preamble.
			w.inFrame, w.frame, w.n = true, 0, 1
			w.ones = 0
		default:
			w.ones = 0
		}
		return
	}
	w.frame <<= 1
	if b {
		w.frame |= 1
	}
	w.n++
	switch w.n {
	case 14:
		// Start bit 0 is implicit in the leading zero of frame.
		st, op := w.frame>>12, w.frame>>10&3
		addr, reg := uint8(w.frame>>5&0x1f), uint16(w.frame&0x1f)
		if st != 0b01 || op != 0b10 {
			w.inFrame = st == 0b01 && op == 0b01 // Writes go on to the data.
			return
		}
		w.inFrame = false
		w.phy.mu.Lock()
		present := addr == w.phy.addr
		w.phy.mu.Unlock()
		if !present {
			return
		}
		v, err := w.phy.Read(addr, 0, reg)
		if err != nil {
			return // A failing PHY leaves the line floating.
		}
		w.reply = append(w.reply[:0], false)
		for i := 15; i >= 0; i-- {
			w.reply = append(w.reply, v>>i&1 != 0)
		}
	case 32:
		w.inFrame = false
		if w.frame>>16&3 != 0b10 {
			return // Bad turnaround.
		}
		// Header in bits 31-18, turnaround in 17-16, data in 15-0.
		addr, reg := uint8(w.frame>>23&0x1f), uint16(w.frame>>18&0x1f)
		w.phy.Write(addr, 0, reg, uint16(w.frame))
	}
}
