// Package miiphy holds definitions shared by the PHY host layer and its drivers.
package miiphy

import "strconv"

type errGeneric uint8

// Generic errors common to PHY management.
const (
	_                errGeneric = iota // non-initialized err
	ErrInvalidAddr                     // invalid address
	ErrInvalidConfig                   // invalid configuration
	ErrUnsupported                     // unsupported
	ErrShortBuffer                     // short buffer
	ErrTimeout                         // timeout
	ErrNoDriver                        // no driver for device
)

func (err errGeneric) Error() string {
	return err.String()
}

func (err errGeneric) String() string {
	switch err {
	case ErrInvalidAddr:
		return "invalid address"
	case ErrInvalidConfig:
		return "invalid configuration"
	case ErrUnsupported:
		return "unsupported"
	case ErrShortBuffer:
		return "short buffer"
	case ErrTimeout:
		return "timeout"
	case ErrNoDriver:
		return "no driver for device"
	}
	return "errGeneric(" + strconv.Itoa(int(err)) + ")"
}
