package utils

import "time"

// TimeToMillis converts a time to epoch milliseconds, the unit used for all
// event and issue timestamps.
func TimeToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// MillisToTime converts epoch milliseconds back to a time.Time.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// MinutesBetween returns the span between two epoch-millisecond timestamps in
// minutes, regardless of argument order.
func MinutesBetween(a, b int64) float64 {
	if b < a {
		a, b = b, a
	}
	return float64(b-a) / 60_000
}

// HoursSince returns the hours elapsed from an epoch-millisecond timestamp to
// the reference time.
func HoursSince(ms int64, now time.Time) float64 {
	return now.Sub(MillisToTime(ms)).Hours()
}
