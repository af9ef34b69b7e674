package phy

// DeviceState is the coarse state of a [Device] as driven by the host [Machine].
type DeviceState uint8

const (
	// StateDown is the state of a device that was not started.
	StateDown DeviceState = iota
	// StateReady is the state of a bound device waiting to be started.
	StateReady
	// StateHalted is the state of a stopped or suspended device.
	StateHalted
	// StateError is entered when a status read fails.
	StateError
	// StateUp is the state of a started device whose link was not yet polled.
	StateUp
	// StateRunning is the state of a device with link.
	StateRunning
	// StateNoLink is the state of a started device without link.
	StateNoLink
)

func (s DeviceState) String() string {
	switch s {
	case StateDown:
		return "down"
	case StateReady:
		return "ready"
	case StateHalted:
		return "halted"
	case StateError:
		return "error"
	case StateUp:
		return "up"
	case StateRunning:
		return "running"
	case StateNoLink:
		return "nolink"
	}
	return "DeviceState(?)"
}
