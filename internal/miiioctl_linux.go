//go:build linux && !baremetal

package internal

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/soypat/miiphy"
	"golang.org/x/sys/unix"
)

// MIIBus accesses the Clause 22 registers of the PHY attached to a Linux
// network interface through the SIOCGMIIREG and SIOCSMIIREG ioctls.
// It implements the phy.MDIOBus interface.
type MIIBus struct {
	mu   sync.Mutex
	sock int
	name string
}

// miiData mirrors struct mii_ioctl_data from linux/mii.h.
type miiData struct {
	PhyID  uint16
	RegNum uint16
	ValIn  uint16
	ValOut uint16
}

type miiifreq struct {
	Name [unix.IFNAMSIZ]byte
	Data miiData
	_    [24 - unsafe.Sizeof(miiData{})]byte // Pad to size of ifr_ifru union.
}

func makemiiifreq(name string) miiifreq {
	var ifr miiifreq
	copy(ifr.Name[:unix.IFNAMSIZ-1], name)
	return ifr
}

// OpenMIIBus opens the management interface of the network interface name.
func OpenMIIBus(name string) (*MIIBus, error) {
	if len(name) == 0 || len(name) >= unix.IFNAMSIZ {
		return nil, miiphy.ErrInvalidConfig
	}
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("mii socket open: %w", err)
	}
	return &MIIBus{sock: sock, name: name}, nil
}

// Name returns the network interface name.
func (bus *MIIBus) Name() string { return bus.name }

// PHYAddr returns the address of the PHY the kernel driver reports for the interface.
func (bus *MIIBus) PHYAddr() (uint8, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	ifr := makemiiifreq(bus.name)
	err := miiioctl(bus.sock, unix.SIOCGMIIPHY, &ifr)
	if err != nil {
		return 0, err
	}
	return uint8(ifr.Data.PhyID & 0x1f), nil
}

// Read reads a Clause 22 register. Clause 45 accesses are not supported.
func (bus *MIIBus) Read(phyAddr, devAddr uint8, regAddr uint16) (uint16, error) {
	if devAddr != 0 {
		return 0xffff, miiphy.ErrUnsupported
	} else if phyAddr > 31 || regAddr > 31 {
		return 0xffff, miiphy.ErrInvalidAddr
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	ifr := makemiiifreq(bus.name)
	ifr.Data.PhyID = uint16(phyAddr)
	ifr.Data.RegNum = regAddr
	err := miiioctl(bus.sock, unix.SIOCGMIIREG, &ifr)
	if err != nil {
		return 0xffff, err
	}
	return ifr.Data.ValOut, nil
}

// Write writes a Clause 22 register. Requires CAP_NET_ADMIN.
func (bus *MIIBus) Write(phyAddr, devAddr uint8, regAddr, value uint16) error {
	if devAddr != 0 {
		return miiphy.ErrUnsupported
	} else if phyAddr > 31 || regAddr > 31 {
		return miiphy.ErrInvalidAddr
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	ifr := makemiiifreq(bus.name)
	ifr.Data.PhyID = uint16(phyAddr)
	ifr.Data.RegNum = regAddr
	ifr.Data.ValIn = value
	return miiioctl(bus.sock, unix.SIOCSMIIREG, &ifr)
}

func (bus *MIIBus) Close() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.sock < 0 {
		return errors.New("mii bus already closed")
	}
	err := unix.Close(bus.sock)
	bus.sock = -1
	return err
}

func miiioctl(fd int, request uintptr, ifr *miiifreq) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), request, uintptr(unsafe.Pointer(ifr)))
	if errno != 0 {
		return fmt.Errorf("mii ioctl %#x: %w", request, errno)
	}
	return nil
}
