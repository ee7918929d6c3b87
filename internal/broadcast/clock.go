package broadcast

import "time"

// Clock supplies the current time. Values returned by the system clock carry a
// monotonic reading, so differences between them are immune to wall-clock jumps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the process clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// EstimateOffset converts the time elapsed since selectedAt into a byte offset,
// assuming the file was encoded at a constant bitrate (bits per second).
//
// Variable bitrate files drift against this estimate. The result is an
// approximation of "where the broadcast is now", not a frame-accurate seek.
func EstimateOffset(selectedAt, now time.Time, bitrate int) int64 {
	if selectedAt.IsZero() || bitrate <= 0 {
		return 0
	}
	elapsed := now.Sub(selectedAt)
	if elapsed <= 0 {
		return 0
	}
	return elapsed.Milliseconds() * int64(bitrate) / 8000
}

// Airtime is the inverse of EstimateOffset: how long n bytes last at bitrate.
func Airtime(n int64, bitrate int) time.Duration {
	if n <= 0 || bitrate <= 0 {
		return 0
	}
	return time.Duration(float64(n) * 8 / float64(bitrate) * float64(time.Second))
}
