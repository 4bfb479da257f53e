package rtps

import (
	"fmt"
	"math"
	"time"
)

// Time is the RTPS Time_t: seconds since the Unix epoch plus a fraction in
// units of 2^-32 seconds.
type Time struct {
	Seconds  int32
	Fraction uint32
}

var (
	TimeZero     = Time{}
	TimeInvalid  = Time{Seconds: -1, Fraction: 0xffffffff}
	TimeInfinite = Time{Seconds: 0x7fffffff, Fraction: 0xffffffff}
)

// Now returns the current wall clock as RTPS time.
func Now() Time {
	return TimeFromStd(time.Now())
}

// TimeFromStd converts a time.Time.
func TimeFromStd(t time.Time) Time {
	frac := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	return Time{Seconds: int32(t.Unix()), Fraction: uint32(frac)}
}

// ToStd converts to a time.Time.
func (t Time) ToStd() time.Time {
	nanos := uint64(t.Fraction) * uint64(time.Second) >> 32
	return time.Unix(int64(t.Seconds), int64(nanos))
}

func (t Time) IsValid() bool {
	return t != TimeInvalid
}

func (t Time) String() string {
	if t == TimeInvalid {
		return "invalid"
	}
	return t.ToStd().Format(time.RFC3339Nano)
}

// Duration is the RTPS Duration_t with the same base as Time.
type Duration struct {
	Seconds  int32
	Fraction uint32
}

var (
	DurationZero     = Duration{}
	DurationInfinite = Duration{Seconds: 0x7fffffff, Fraction: 0xffffffff}
)

// DurationFromStd converts a time.Duration. Negative durations clamp to zero.
func DurationFromStd(d time.Duration) Duration {
	if d <= 0 {
		return DurationZero
	}
	secs := d / time.Second
	if secs > math.MaxInt32 {
		return DurationInfinite
	}
	frac := uint64(d%time.Second) << 32 / uint64(time.Second)
	return Duration{Seconds: int32(secs), Fraction: uint32(frac)}
}

// ToStd converts to a time.Duration. The infinite duration maps to the
// maximum representable time.Duration.
func (d Duration) ToStd() time.Duration {
	if d == DurationInfinite {
		return time.Duration(math.MaxInt64)
	}
	nanos := uint64(d.Fraction) * uint64(time.Second) >> 32
	return time.Duration(d.Seconds)*time.Second + time.Duration(nanos)
}

// Less reports whether d is strictly shorter than other.
func (d Duration) Less(other Duration) bool {
	if d.Seconds != other.Seconds {
		return d.Seconds < other.Seconds
	}
	return d.Fraction < other.Fraction
}

func (d Duration) IsInfinite() bool {
	return d == DurationInfinite
}

func (d Duration) String() string {
	if d.IsInfinite() {
		return "infinite"
	}
	return fmt.Sprintf("%v", d.ToStd())
}
