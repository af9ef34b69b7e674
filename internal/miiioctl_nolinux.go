//go:build !linux || baremetal

package internal

import "github.com/soypat/miiphy"

type MIIBus struct{}

func OpenMIIBus(name string) (*MIIBus, error) {
	return nil, miiphy.ErrUnsupported
}

func (bus *MIIBus) Name() string { return "" }

func (bus *MIIBus) PHYAddr() (uint8, error) {
	return 0, miiphy.ErrUnsupported
}
func (bus *MIIBus) Read(phyAddr, devAddr uint8, regAddr uint16) (uint16, error) {
	return 0xffff, miiphy.ErrUnsupported
}
func (bus *MIIBus) Write(phyAddr, devAddr uint8, regAddr, value uint16) error {
	return miiphy.ErrUnsupported
}
func (bus *MIIBus) Close() error {
	return miiphy.ErrUnsupported
}
