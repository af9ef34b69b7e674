package phy

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/soypat/miiphy"
	"github.com/soypat/miiphy/internal"
)

// LinkEvent is reported by a [Machine] each time the state of a device changes.
type LinkEvent struct {
	Addr  uint8 // PHY address.
	ID    uint32
	Prev  DeviceState
	State DeviceState
	Mode  LinkMode
	// Err is set when the state changed to StateError.
	Err error
}

// MachineConfig configures a [Machine].
type MachineConfig struct {
	Logger *slog.Logger
	// OnLinkChange is called with the device lock held, it must not call back into the Machine.
	OnLinkChange func(LinkEvent)
}

// Machine is the host state machine for a set of bound devices. It polls
// each device through its driver, moves it between [StateRunning] and
// [StateNoLink] and notifies the driver of every state change.
//
// Machine serializes all access to an attached device. Devices must not be
// accessed directly while attached.
type Machine struct {
	mu       sync.Mutex
	devs     []*machineDev
	onChange func(LinkEvent)
	logger
}

type machineDev struct {
	mu  sync.Mutex
	dev *Device
}

// Configure resets the machine. Attached devices are detached.
// Configure must not be called while Tick or Run are in progress.
func (m *Machine) Configure(cfg MachineConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devs = m.devs[:0]
	m.onChange = cfg.OnLinkChange
	m.logger = logger{log: cfg.Logger}
	return nil
}

// Attach adds a bound device to the machine. The device is left in its current state.
func (m *Machine) Attach(dev *Device) error {
	if dev == nil {
		return miiphy.ErrInvalidConfig
	} else if dev.Driver() == nil {
		return miiphy.ErrNoDriver
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, md := range m.devs {
		if md.dev == dev {
			return miiphy.ErrInvalidConfig
		}
	}
	m.devs = append(m.devs, &machineDev{dev: dev})
	return nil
}

// Detach removes the device from the machine.
func (m *Machine) Detach(dev *Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, md := range m.devs {
		if md.dev == dev {
			md.mu.Lock() // Wait for in-flight operations.
			m.devs = append(m.devs[:i], m.devs[i+1:]...)
			md.mu.Unlock()
			return
		}
	}
}

// Len returns the number of attached devices.
func (m *Machine) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devs)
}

// Start starts link management of an attached device: a halted device is
// resumed, auto-negotiation is started and the device moves to [StateUp].
func (m *Machine) Start(dev *Device) error {
	return m.with(dev, func(dev *Device) error {
		prev := dev.state
		switch prev {
		case StateReady, StateDown, StateError:
		case StateHalted:
			if err := dev.Driver().Resume(dev); err != nil {
				return err
			}
		default:
			return nil // Already started.
		}
		if err := dev.StartAneg(); err != nil {
			return err
		}
		m.transition(dev, prev, StateUp, nil)
		return nil
	})
}

// Stop halts link management of the device. The link is reported down.
func (m *Machine) Stop(dev *Device) error {
	return m.with(dev, func(dev *Device) error {
		prev := dev.state
		if prev == StateHalted {
			return nil
		}
		dev.clearLinkState()
		m.transition(dev, prev, StateHalted, nil)
		return nil
	})
}

// Suspend puts the device in a low power state through its driver and halts it.
func (m *Machine) Suspend(dev *Device) error {
	return m.with(dev, func(dev *Device) error {
		prev := dev.state
		if err := dev.Driver().Suspend(dev); err != nil {
			return err
		}
		dev.clearLinkState()
		if prev != StateHalted {
			m.transition(dev, prev, StateHalted, nil)
		}
		return nil
	})
}

// Resume brings a suspended device back through its driver. The device is
// left in [StateUp] so the next poll resolves its link.
func (m *Machine) Resume(dev *Device) error {
	return m.with(dev, func(dev *Device) error {
		prev := dev.state
		if err := dev.Driver().Resume(dev); err != nil {
			return err
		}
		if prev == StateHalted {
			m.transition(dev, prev, StateUp, nil)
		}
		return nil
	})
}

// Reset performs a soft reset of the device through its driver.
func (m *Machine) Reset(dev *Device) error {
	return m.with(dev, func(dev *Device) error {
		return dev.Driver().SoftReset(dev)
	})
}

// Tick polls the status of all started devices once. Errors of all devices
// are joined; a device whose status read failed moves to [StateError] and is
// not polled again until restarted.
func (m *Machine) Tick() error {
	m.mu.Lock()
	devs := append([]*machineDev(nil), m.devs...)
	m.mu.Unlock()
	var errs []error
	for _, md := range devs {
		md.mu.Lock()
		err := m.poll(md.dev)
		md.mu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run calls Tick every interval until ctx is done. Failing ticks delay the
// next tick with an exponential backoff kept per call, so concurrent Runs do
// not share state. Returns the context error.
func (m *Machine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return miiphy.ErrInvalidConfig
	}
	backoff := internal.NewBackoff(0)
	m.mu.Lock()
	log := m.logger
	m.mu.Unlock()
	for {
		wait := interval
		if err := m.Tick(); err != nil {
			log.logerr("machine:tick", internal.SlogErr(err))
			wait += backoff.Miss()
		} else {
			backoff.Hit()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (m *Machine) poll(dev *Device) error {
	prev := dev.state
	switch prev {
	case StateUp, StateNoLink, StateRunning:
	default:
		return nil
	}
	err := dev.Driver().ReadStatus(dev)
	if err != nil {
		dev.clearLinkState()
		m.transition(dev, prev, StateError, err)
		return err
	}
	next := StateNoLink
	if dev.link {
		next = StateRunning
	}
	if next != prev {
		m.transition(dev, prev, next, nil)
	}
	return nil
}

// transition sets the device state, reports the event and notifies the driver.
func (m *Machine) transition(dev *Device, prev, next DeviceState, err error) {
	dev.state = next
	ev := LinkEvent{
		Addr:  dev.phyaddr,
		ID:    dev.id,
		Prev:  prev,
		State: next,
		Mode:  dev.LinkMode(),
		Err:   err,
	}
	if m.logenabled(slog.LevelDebug) {
		m.debug("machine:state", internal.SlogPHYAddr(ev.Addr), slog.String("prev", prev.String()),
			slog.String("next", next.String()), slog.String("mode", ev.Mode.String()))
	}
	if m.onChange != nil {
		m.onChange(ev)
	}
	dev.Driver().LinkChangeNotify(dev)
}

// with runs fn with exclusive access to an attached device.
func (m *Machine) with(dev *Device, fn func(*Device) error) error {
	m.mu.Lock()
	var md *machineDev
	for _, d := range m.devs {
		if d.dev == dev {
			md = d
			break
		}
	}
	m.mu.Unlock()
	if md == nil {
		return miiphy.ErrInvalidConfig
	}
	md.mu.Lock()
	defer md.mu.Unlock()
	return fn(md.dev)
}
