package util

import "time"

// NowUTC is the wall clock used for run timestamps. It is truncated to
// microseconds, the precision Postgres timestamptz keeps, so a run read back
// from the database equals the one that was written.
func NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
