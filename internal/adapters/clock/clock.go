package clock

import "time"

// Clock reads the wall clock.
type Clock struct{}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now()
}

// NowUnix returns current unix seconds.
func (Clock) NowUnix() int64 {
	return time.Now().Unix()
}
