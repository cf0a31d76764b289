// Package helpers holds small, narrowing int conversions the balancer needs
// at its few points of contact with narrower wire or config types: a UDP
// port (int, per net.UDPAddr) packed into a 16-bit fingerprint field, and a
// configured retry count (int, per viper) stored as a forwarder's int32
// watchdog counter. Clamping instead of a bare conversion means a value that
// can't happen in practice (a malformed address, a nonsensical config entry)
// saturates instead of wrapping around to something that looks valid.
package helpers

import "math"

func clampInt(v, minVal, maxVal int) int {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// ClampIntToUint16 clamps v into [0, math.MaxUint16].
func ClampIntToUint16(v int) uint16 {
	return uint16(clampInt(v, 0, math.MaxUint16)) //nolint:gosec // clamped to valid range
}

// ClampIntToUint32 clamps v into [0, math.MaxUint32].
func ClampIntToUint32(v int) uint32 {
	return uint32(clampInt(v, 0, math.MaxUint32)) //nolint:gosec // clamped to valid range
}
