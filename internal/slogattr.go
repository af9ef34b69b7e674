package internal

import "log/slog"

// SlogPHYAddr returns an "addr" attribute for a PHY address on the MDIO bus.
func SlogPHYAddr(addr uint8) slog.Attr {
	return slog.Uint64("addr", uint64(addr))
}

// SlogID returns an "id" attribute for a 32 bit PHY identifier
// without allocating a string.
func SlogID(id uint32) slog.Attr {
	return slog.Uint64("id", uint64(id))
}

// SlogReg returns a slog.Attr for a 16 bit register value.
func SlogReg(key string, v uint16) slog.Attr {
	return slog.Uint64(key, uint64(v))
}
