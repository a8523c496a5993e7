package logic

import "time"

// Millis is a free-running millisecond counter. It wraps at 2^32 (about 49.7
// days), so instants are only ever compared through Since.
type Millis uint32

// Since returns the milliseconds elapsed from earlier to m.
// Unsigned subtraction keeps the result correct across a single wrap.
func (m Millis) Since(earlier Millis) uint32 {
	return uint32(m - earlier)
}

// Reached reports whether at least d has elapsed from earlier to m.
func (m Millis) Reached(earlier Millis, d time.Duration) bool {
	return m.Since(earlier) >= DurationMillis(d)
}

// DurationMillis converts d to whole milliseconds. Negative durations are zero.
func DurationMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(d / time.Millisecond)
}
