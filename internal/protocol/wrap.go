package protocol

// WrappedDelta returns the signed distance from a to b on a counter of the given width.
// A negative result means b is older than a.
func WrappedDelta(a, b uint8, w SessionWidth) int {
	r := w.Range()
	d := (int(b) - int(a)) & (r - 1)
	if d >= r/2 {
		d -= r
	}
	return d
}

// WrappedDelta16 is WrappedDelta for 16 bit sequence numbers.
func WrappedDelta16(a, b uint16) int {
	return int(int16(b - a))
}
