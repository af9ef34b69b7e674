package phy

import (
	"log/slog"
	"sync"

	"github.com/soypat/miiphy"
	"github.com/soypat/miiphy/internal"
)

// Registry holds the registered PHY drivers and binds devices to them.
// The zero value is ready to use.
type Registry struct {
	mu      sync.Mutex
	drivers []*DriverInfo
	logger
}

// SetLogger sets the logger used to report registrations and bindings.
func (r *Registry) SetLogger(log *slog.Logger) {
	r.mu.Lock()
	r.logger = logger{log: log}
	r.mu.Unlock()
}

// Register adds a driver. Descriptors without a name or driver, and
// descriptors already registered (same pointer or same name) are rejected.
func (r *Registry) Register(info *DriverInfo) error {
	if info == nil || info.Driver == nil || info.Name == "" {
		return miiphy.ErrInvalidConfig
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.drivers {
		if d == info || d.Name == info.Name {
			return miiphy.ErrInvalidConfig
		}
	}
	r.drivers = append(r.drivers, info)
	r.debug("registry:register", slog.String("driver", info.Name), slog.Int("ids", len(info.Table)))
	return nil
}

// Unregister removes a driver. Devices already bound keep their driver.
func (r *Registry) Unregister(info *DriverInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.drivers {
		if d == info {
			r.drivers = append(r.drivers[:i], r.drivers[i+1:]...)
			return
		}
	}
}

// Lookup returns the first driver whose device table claims id, or nil.
// Match predicates are not called.
func (r *Registry) Lookup(id uint32) *DriverInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.drivers {
		if d.Claims(id) {
			return d
		}
	}
	return nil
}

// Bind binds dev to a driver. Device tables are consulted first; drivers whose
// table does not claim the identifier are then asked through their Match predicate.
// The identifier must have been read with [Device.Probe].
// Returns [miiphy.ErrInvalidConfig] if dev is already bound and
// [miiphy.ErrNoDriver] if no driver handles it.
func (r *Registry) Bind(dev *Device) error {
	if dev.drv != nil {
		return miiphy.ErrInvalidConfig
	}
	info := r.Lookup(dev.id)
	if info == nil {
		r.mu.Lock()
		for _, d := range r.drivers {
			if d.Driver.Match(dev) {
				info = d
				break
			}
		}
		r.mu.Unlock()
	}
	if info == nil {
		r.debug("registry:no-driver", internal.SlogID(dev.id))
		return miiphy.ErrNoDriver
	}
	dev.drv = info
	dev.state = StateReady
	r.info("registry:bind", slog.String("driver", info.Name), internal.SlogPHYAddr(dev.phyaddr), internal.SlogID(dev.id))
	return nil
}

// Unbind detaches dev from its driver.
func (r *Registry) Unbind(dev *Device) {
	dev.drv = nil
	dev.state = StateDown
}
