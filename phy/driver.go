package phy

// Driver is implemented by chip specific PHY drivers. The host calls the
// hooks with exclusive access to dev; a driver must not retain dev after
// the call returns.
type Driver interface {
	// Match reports whether dev is handled by the driver. Must not access the bus.
	Match(dev *Device) bool
	// ReadStatus refreshes link, speed and duplex of dev.
	ReadStatus(dev *Device) error
	// Suspend puts the PHY in a low power state.
	Suspend(dev *Device) error
	// Resume brings the PHY out of a low power state.
	Resume(dev *Device) error
	// SoftReset resets the PHY.
	SoftReset(dev *Device) error
	// LinkChangeNotify is called by the host after the device state changed.
	LinkChangeNotify(dev *Device)
}

// DriverFlags are capability flags of a driver.
type DriverFlags uint32

const (
	// FlagIsInternal marks PHYs integrated in the MAC chip which need no external MDIO wiring.
	FlagIsInternal DriverFlags = 1 << iota
)

// DeviceID is an entry of a driver's device table. A device with identifier
// id is claimed when id&Mask == ID&Mask.
type DeviceID struct {
	ID   uint32
	Mask uint32
}

// Matches reports whether the identifier id is claimed by the entry.
func (d DeviceID) Matches(id uint32) bool {
	return id&d.Mask == d.ID&d.Mask
}

// DriverInfo describes a driver to a [Registry]. It must not be modified after registration.
type DriverInfo struct {
	Name   string
	Flags  DriverFlags
	Table  []DeviceID
	Driver Driver
}

// Claims reports whether the device table of the driver claims id.
func (info *DriverInfo) Claims(id uint32) bool {
	for _, entry := range info.Table {
		if entry.Matches(id) {
			return true
		}
	}
	return false
}
