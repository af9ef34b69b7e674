package asix

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/soypat/miiphy"
	"github.com/soypat/miiphy/internal/phytest"
	"github.com/soypat/miiphy/phy"
)

const simAddr = 3

// Link partner advertisements, ANAR bit layout.
const (
	partner100Full  = 0x01e1
	partner10Full   = 0x0041
	partnerPause100 = 0x05e1
)

var errBus = errors.New("mdio: no ack")

func newDevice(t *testing.T, sim *phytest.PHY) *phy.Device {
	t.Helper()
	var dev phy.Device
	err := dev.ConfigureAs22(sim, simAddr)
	if err != nil {
		t.Fatal(err)
	}
	err = dev.Probe()
	if err != nil {
		t.Fatal(err)
	}
	var r phy.Registry
	err = Register(&r)
	if err != nil {
		t.Fatal(err)
	}
	err = r.Bind(&dev)
	if err != nil {
		t.Fatal(err)
	}
	sim.ResetLog()
	return &dev
}

func TestMatch(t *testing.T) {
	var tests = []struct {
		id   uint32
		want bool
	}{
		{id: 0x003b1861, want: true},
		{id: 0x003b1860, want: false}, // Revision differs.
		{id: 0x003b1841, want: false}, // AX88796B.
		{id: 0x003b1881, want: false}, // AX88772C.
		{id: 0x803b1861, want: false}, // MSB differs.
		{id: 0x003b1863, want: false}, // Bit 1 differs.
		{id: 0x00000000, want: false},
		{id: 0xffffffff, want: false},
	}
	for _, tt := range tests {
		sim := phytest.New(simAddr, tt.id)
		var dev phy.Device
		err := dev.ConfigureAs22(sim, simAddr)
		if err != nil {
			t.Fatal(err)
		}
		err = dev.Probe()
		if err != nil {
			t.Fatal(err)
		}
		sim.ResetLog()
		got := Driver{}.Match(&dev)
		if got != tt.want {
			t.Errorf("Match(%#08x) got %v; want %v", tt.id, got, tt.want)
		}
		if log := sim.Log(); len(log) != 0 {
			t.Errorf("Match(%#08x) accessed bus: %v", tt.id, log)
		}
	}
}

func TestInfo(t *testing.T) {
	if Info.Flags&phy.FlagIsInternal == 0 {
		t.Error("driver not flagged as internal PHY")
	}
	if len(Info.Table) != 1 {
		t.Fatalf("got %d table entries; want 1", len(Info.Table))
	}
	entry := Info.Table[0]
	if entry.ID != 0x003b1861 || entry.Mask != 0xffffffff {
		t.Errorf("got table entry %#08x/%#08x; want 0x003b1861/0xffffffff", entry.ID, entry.Mask)
	}
	if !Info.Claims(PhyIDAX88772A) || Info.Claims(PhyIDAX88772A^1) {
		t.Error("device table must claim exactly the AX88772A identifier")
	}
	var r phy.Registry
	err := Register(&r)
	if err != nil {
		t.Fatal(err)
	}
	err = Register(&r)
	if !errors.Is(err, miiphy.ErrInvalidConfig) {
		t.Errorf("second registration got %v; want %v", err, miiphy.ErrInvalidConfig)
	}
	if r.Lookup(PhyIDAX88772A) != Info {
		t.Error("lookup by identifier did not return descriptor")
	}
}

func TestBindOnce(t *testing.T) {
	sim := phytest.New(simAddr, PhyIDAX88772A)
	dev := newDevice(t, sim)
	if dev.DriverInfo() != Info {
		t.Fatal("device not bound to AX88772A driver")
	}
	var r phy.Registry
	Register(&r)
	err := r.Bind(dev)
	if !errors.Is(err, miiphy.ErrInvalidConfig) {
		t.Errorf("rebinding got %v; want %v", err, miiphy.ErrInvalidConfig)
	}
}

func TestReadStatusDecode(t *testing.T) {
	// Bits other than speed and duplex. AN restart is left out: it marks the link down.
	const noise = 0xffff &^ (bmcrSpeed100 | bmcrFullDuplex | uint16(phy.BMCRANRestart))
	var tests = []struct {
		bmcr      uint16
		wantSpeed phy.Speed
		wantFull  bool
	}{
		{bmcr: 0x0000, wantSpeed: phy.Speed10, wantFull: false},
		{bmcr: 0x2000, wantSpeed: phy.Speed100, wantFull: false},
		{bmcr: 0x0100, wantSpeed: phy.Speed10, wantFull: true},
		{bmcr: 0x2100, wantSpeed: phy.Speed100, wantFull: true},
	}
	for _, tt := range tests {
		for _, extra := range []uint16{0, noise} {
			sim := phytest.New(simAddr, PhyIDAX88772A)
			dev := newDevice(t, sim)
			sim.Set(phytest.RegBMSR, phytest.DefaultBMSR|uint16(phy.BMSRLinkStatus))
			sim.Set(phytest.RegBMCR, tt.bmcr|extra)
			err := Driver{}.ReadStatus(dev)
			if err != nil {
				t.Fatalf("bmcr=%#04x: %v", tt.bmcr|extra, err)
			}
			if !dev.Link() {
				t.Fatalf("bmcr=%#04x: link down", tt.bmcr|extra)
			}
			if dev.Speed() != tt.wantSpeed || dev.FullDuplex() != tt.wantFull {
				t.Errorf("bmcr=%#04x: got %v full=%v; want %v full=%v", tt.bmcr|extra, dev.Speed(), dev.FullDuplex(), tt.wantSpeed, tt.wantFull)
			}
		}
	}
}

func TestReadStatusLinkDown(t *testing.T) {
	sim := phytest.New(simAddr, PhyIDAX88772A)
	dev := newDevice(t, sim)
	// Sentinels the driver must not overwrite.
	dev.SetSpeed(phy.Speed1000)
	dev.SetDuplex(true)
	err := Driver{}.ReadStatus(dev)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Link() {
		t.Fatal("link up without link partner")
	}
	if dev.Speed() != phy.Speed1000 || !dev.FullDuplex() {
		t.Errorf("speed/duplex modified on link down: %v full=%v", dev.Speed(), dev.FullDuplex())
	}
	log := sim.Log()
	if len(log) == 0 {
		t.Fatal("no link update performed")
	}
	// Only the link update touches the bus: one control register read
	// for the AN restart check followed by status register reads.
	if log[0].Write || log[0].Reg != phytest.RegBMCR {
		t.Errorf("first access got %+v; want BMCR read", log[0])
	}
	for _, a := range log[1:] {
		if a.Write || a.Reg != phytest.RegBMSR {
			t.Errorf("unexpected access after link update: %+v", a)
		}
	}
	if n := sim.Reads(phytest.RegANLPAR); n != 0 {
		t.Errorf("link partner ability read %d times on link down", n)
	}
}

func TestReadStatusIdempotent(t *testing.T) {
	sim := phytest.New(simAddr, PhyIDAX88772A)
	sim.Connect(partner100Full)
	dev := newDevice(t, sim)
	err := Driver{}.ReadStatus(dev)
	if err != nil {
		t.Fatal(err)
	}
	link, speed, full, mode := dev.Link(), dev.Speed(), dev.FullDuplex(), dev.LinkMode()
	err = Driver{}.ReadStatus(dev)
	if err != nil {
		t.Fatal(err)
	}
	if link != dev.Link() || speed != dev.Speed() || full != dev.FullDuplex() || mode != dev.LinkMode() {
		t.Errorf("second read got %v %v %v %v; want %v %v %v %v", dev.Link(), dev.Speed(), dev.FullDuplex(), dev.LinkMode(), link, speed, full, mode)
	}
	if mode != phy.Link100FDX {
		t.Errorf("got mode %v; want %v", mode, phy.Link100FDX)
	}
}

func TestReadStatusAutoneg(t *testing.T) {
	sim := phytest.New(simAddr, PhyIDAX88772A)
	sim.Connect(partner10Full)
	dev := newDevice(t, sim)
	err := Driver{}.ReadStatus(dev)
	if err != nil {
		t.Fatal(err)
	}
	if !dev.IsAutonegCompleted() {
		t.Fatal("auto-negotiation not complete")
	}
	if dev.LinkPartnerAdvertising()&phy.ANAR10Full == 0 {
		t.Errorf("link partner advertisement not read: %#04x", dev.LinkPartnerAdvertising())
	}
	if dev.LinkMode() != phy.Link10FDX {
		t.Errorf("got mode %v; want %v", dev.LinkMode(), phy.Link10FDX)
	}
	if n := sim.Reads(phytest.RegANLPAR); n != 1 {
		t.Errorf("got %d link partner ability reads; want 1", n)
	}
}

func TestReadStatusPause(t *testing.T) {
	sim := phytest.New(simAddr, PhyIDAX88772A)
	sim.Connect(partnerPause100)
	dev := newDevice(t, sim)
	dev.SetAdvertising(dev.Advertising().WithPause(true, false))
	err := dev.StartAneg()
	if err != nil {
		t.Fatal(err)
	}
	err = Driver{}.ReadStatus(dev)
	if err != nil {
		t.Fatal(err)
	}
	rx, tx := dev.Pause()
	if !rx || !tx {
		t.Errorf("got pause rx=%v tx=%v; want symmetric pause", rx, tx)
	}
}

func TestReadStatusNoResolveWithoutAutoneg(t *testing.T) {
	sim := phytest.New(simAddr, PhyIDAX88772A)
	sim.Connect(partner100Full)
	dev := newDevice(t, sim)
	dev.SetAutoneg(false)
	dev.SetSpeed(phy.Speed10)
	dev.SetDuplex(false)
	err := dev.StartAneg() // Forces 10M half.
	if err != nil {
		t.Fatal(err)
	}
	err = Driver{}.ReadStatus(dev)
	if err != nil {
		t.Fatal(err)
	}
	if dev.LinkMode() != phy.Link10HDX {
		t.Errorf("got mode %v; want forced %v", dev.LinkMode(), phy.Link10HDX)
	}
	if dev.LinkPartnerAdvertising() != 0 {
		t.Errorf("partner advertisement kept with auto-negotiation disabled: %#04x", dev.LinkPartnerAdvertising())
	}
}

func TestReadStatusErrors(t *testing.T) {
	var tests = []struct {
		name  string
		fault func(sim *phytest.PHY)
		// setters are invoked before the failing access.
		setters bool
	}{
		{name: "update-link", fault: func(sim *phytest.PHY) { sim.FailRead(phytest.RegBMSR, errBus) }},
		// First control register read belongs to the link update.
		{name: "bmcr", fault: func(sim *phytest.PHY) { sim.FailReadAfter(phytest.RegBMCR, 1, errBus) }},
		{name: "lpa", fault: func(sim *phytest.PHY) { sim.FailRead(phytest.RegANLPAR, errBus) }, setters: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := phytest.New(simAddr, PhyIDAX88772A)
			sim.Connect(partner10Full)
			dev := newDevice(t, sim)
			dev.SetSpeed(phy.Speed1000)
			dev.SetDuplex(false)
			tt.fault(sim)
			err := Driver{}.ReadStatus(dev)
			if !errors.Is(err, phy.ErrIO) {
				t.Fatalf("got err %v; want IO error", err)
			}
			if !errors.Is(err, errBus) {
				t.Errorf("bus error not wrapped: %v", err)
			}
			setterCalled := dev.Speed() != phy.Speed1000 || dev.FullDuplex()
			if setterCalled != tt.setters {
				t.Errorf("setters called=%v; want %v", setterCalled, tt.setters)
			}
			if tt.name != "lpa" && sim.Reads(phytest.RegANLPAR) != 0 {
				t.Error("link partner ability read after failure")
			}
		})
	}
}

func TestSoftReset(t *testing.T) {
	for _, prior := range []uint16{0x0000, 0x3100, uint16(phy.BMCRLoopback | phy.BMCRIsolate | phy.BMCRPowerDown), 0xffff &^ uint16(phy.BMCRReset)} {
		sim := phytest.New(simAddr, PhyIDAX88772A)
		sim.SetResetPolls(2)
		dev := newDevice(t, sim)
		sim.Set(phytest.RegBMCR, prior)
		err := Driver{}.SoftReset(dev)
		if err != nil {
			t.Fatalf("prior=%#04x: %v", prior, err)
		}
		writes := sim.Writes(phytest.RegBMCR)
		if len(writes) < 2 {
			t.Fatalf("prior=%#04x: got BMCR writes %#04x; want clear then reset", prior, writes)
		}
		if writes[0] != 0x0000 {
			t.Errorf("prior=%#04x: first BMCR write got %#04x; want 0x0000", prior, writes[0])
		}
		if writes[1]&uint16(phy.BMCRReset) == 0 {
			t.Errorf("prior=%#04x: second BMCR write %#04x does not reset", prior, writes[1])
		}
		if sim.Get(phytest.RegBMCR)&uint16(phy.BMCRPowerDown|phy.BMCRIsolate|phy.BMCRLoopback) != 0 {
			t.Errorf("prior=%#04x: PHY left powered down, isolated or in loopback", prior)
		}
	}
}

func TestSoftResetErrors(t *testing.T) {
	sim := phytest.New(simAddr, PhyIDAX88772A)
	dev := newDevice(t, sim)
	sim.FailWrite(phytest.RegBMCR, errBus)
	err := Driver{}.SoftReset(dev)
	if !errors.Is(err, phy.ErrIO) {
		t.Fatalf("got %v; want IO error", err)
	}
	if n := len(sim.Writes(phytest.RegBMCR)); n != 1 {
		t.Errorf("got %d BMCR writes; generic reset must not run after failed clear", n)
	}

	// Generic reset sequence failure.
	sim = phytest.New(simAddr, PhyIDAX88772A)
	dev = newDevice(t, sim)
	sim.FailReadAfter(phytest.RegBMCR, 1, errBus) // Poll for reset completion fails.
	err = Driver{}.SoftReset(dev)
	if !errors.Is(err, errBus) {
		t.Fatalf("got %v; want %v", err, errBus)
	}
}

func TestSuspendResume(t *testing.T) {
	sim := phytest.New(simAddr, PhyIDAX88772A)
	sim.Connect(partner100Full)
	dev := newDevice(t, sim)
	err := Driver{}.Suspend(dev)
	if err != nil {
		t.Fatal(err)
	}
	if sim.Get(phytest.RegBMCR)&uint16(phy.BMCRPowerDown) == 0 {
		t.Fatal("PHY not powered down")
	}
	err = Driver{}.ReadStatus(dev)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Link() {
		t.Error("link up while powered down")
	}
	err = Driver{}.Resume(dev)
	if err != nil {
		t.Fatal(err)
	}
	if sim.Get(phytest.RegBMCR)&uint16(phy.BMCRPowerDown) != 0 {
		t.Fatal("PHY still powered down")
	}
	err = Driver{}.ReadStatus(dev)
	if err != nil {
		t.Fatal(err)
	}
	if dev.LinkMode() != phy.Link100FDX {
		t.Errorf("got mode %v after resume; want %v", dev.LinkMode(), phy.Link100FDX)
	}

	sim.FailRead(phytest.RegBMCR, errBus)
	if err := (Driver{}).Suspend(dev); !errors.Is(err, phy.ErrIO) {
		t.Errorf("suspend got %v; want IO error", err)
	}
	if err := (Driver{}).Resume(dev); !errors.Is(err, phy.ErrIO) {
		t.Errorf("resume got %v; want IO error", err)
	}
}

func TestLinkChangeNotify(t *testing.T) {
	var states = []phy.DeviceState{phy.StateDown, phy.StateReady, phy.StateHalted, phy.StateError, phy.StateUp, phy.StateRunning}
	for _, state := range states {
		sim := phytest.New(simAddr, PhyIDAX88772A)
		dev := newDevice(t, sim)
		dev.SetState(state)
		Driver{}.LinkChangeNotify(dev)
		if log := sim.Log(); len(log) != 0 {
			t.Errorf("state %v: unexpected bus accesses %v", state, log)
		}
	}

	sim := phytest.New(simAddr, PhyIDAX88772A)
	dev := newDevice(t, sim)
	dev.SetState(phy.StateNoLink)
	Driver{}.LinkChangeNotify(dev)
	writes := sim.Writes(phytest.RegBMCR)
	if len(writes) == 0 || writes[0] != 0 {
		t.Fatalf("hardware not reinitialized, BMCR writes: %#04x", writes)
	}
	clears := 0
	for _, w := range writes {
		if w == 0 {
			clears++
		}
	}
	if clears != 1 {
		t.Errorf("got %d soft resets; want 1", clears)
	}
	if n := sim.Reads(phytest.RegANAR); n != 1 {
		t.Errorf("got %d advertisement reads; want auto-negotiation started once", n)
	}
	if dev.State() != phy.StateNoLink {
		t.Errorf("hook changed device state to %v", dev.State())
	}
}

func TestLinkChangeNotifyErrors(t *testing.T) {
	var buf bytes.Buffer
	sim := phytest.New(simAddr, PhyIDAX88772A)
	dev := newDevice(t, sim)
	dev.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	dev.SetState(phy.StateNoLink)
	sim.FailWrite(phytest.RegBMCR, errBus)
	sim.FailRead(phytest.RegANAR, errBus)
	Driver{}.LinkChangeNotify(dev) // Must not panic nor stop after the first failure.
	if n := sim.Reads(phytest.RegANAR); n != 1 {
		t.Errorf("auto-negotiation not attempted after failed init: %d advertisement reads", n)
	}
	out := buf.String()
	if !strings.Contains(out, "ax88772a:init-hw") || !strings.Contains(out, "ax88772a:start-aneg") {
		t.Errorf("swallowed errors not logged: %q", out)
	}
}
