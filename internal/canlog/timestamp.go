package canlog

import (
	"bytes"
	"errors"
	"fmt"

	"example.com/canlog/internal/common"
	"example.com/canlog/internal/lex"
)

var ErrBadTimestamp = errors.New("malformed timestamp")

const (
	nsPerSecond   = uint64(1_000_000_000)
	nsPerMinute   = 60 * nsPerSecond
	nsPerHour     = 60 * nsPerMinute
	maxFracDigits = 9
)

// Clock is a wall-clock reading without a date: [day.]HH:MM:SS[.frac].
type Clock struct {
	HasDay     bool
	Day        uint32
	Hour       uint32
	Minute     uint32
	Second     uint32
	Frac       uint64
	FracDigits int
}

func (c Clock) String() string {
	s := fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
	if c.FracDigits > 0 {
		s += fmt.Sprintf(".%0*d", c.FracDigits, c.Frac)
	}
	if c.HasDay {
		s = fmt.Sprintf("%d.%s", c.Day, s)
	}
	return s
}

// ParseClock parses "[day.]HH:MM:SS[.frac]". Fraction digits beyond
// nanosecond precision are dropped.
func ParseClock(b []byte) (Clock, error) {
	var c Clock
	parts := bytes.Split(b, []byte(":"))
	if len(parts) != 3 {
		return c, fmt.Errorf("%w: %q", ErrBadTimestamp, b)
	}
	hourField := parts[0]
	if dot := bytes.IndexByte(hourField, '.'); dot >= 0 {
		day, err := lex.ParseDecimal(hourField[:dot])
		if err != nil || day > 9 {
			return c, fmt.Errorf("%w: bad day flag in %q", ErrBadTimestamp, b)
		}
		c.HasDay = true
		c.Day = uint32(day)
		hourField = hourField[dot+1:]
	}
	hour, err := clockField(hourField, 23)
	if err != nil {
		return c, fmt.Errorf("%w: hour in %q", ErrBadTimestamp, b)
	}
	minute, err := clockField(parts[1], 59)
	if err != nil {
		return c, fmt.Errorf("%w: minute in %q", ErrBadTimestamp, b)
	}
	secField := parts[2]
	if dot := bytes.IndexByte(secField, '.'); dot >= 0 {
		frac := secField[dot+1:]
		if len(frac) > maxFracDigits {
			frac = frac[:maxFracDigits]
		}
		if len(frac) > 0 {
			v, err := lex.ParseDecimal(frac)
			if err != nil {
				return c, fmt.Errorf("%w: fraction in %q", ErrBadTimestamp, b)
			}
			c.Frac = v
			c.FracDigits = len(frac)
		}
		secField = secField[:dot]
	}
	second, err := clockField(secField, 60)
	if err != nil {
		return c, fmt.Errorf("%w: second in %q", ErrBadTimestamp, b)
	}
	c.Hour, c.Minute, c.Second = hour, minute, second
	return c, nil
}

func clockField(b []byte, limit uint64) (uint32, error) {
	if len(b) == 0 || len(b) > 2 {
		return 0, ErrBadTimestamp
	}
	v, err := lex.ParseDecimal(b)
	if err != nil || v > limit {
		return 0, ErrBadTimestamp
	}
	return uint32(v), nil
}

// RolloverState is the only state carried from line to line: the previously
// seen hour and whether midnight has been crossed. The zero value is the
// state at the start of a file.
type RolloverState struct {
	Seen     bool
	LastHour uint32
	Rollover bool
}

// Reconstructor turns clock readings into monotonic timestamps. It holds no
// mutable state; the caller threads RolloverState through successive calls.
type Reconstructor struct {
	Resolution Resolution
}

// Stamp returns the timestamp for c and the state to use for the next line.
//
// Rollover is set when c carries a non-zero day flag or when the hour dropped
// by exactly 23 since the previous line. Once set it persists for the rest
// of the file; a day flag of 0 never clears it. Logs that cross midnight
// more than once are not distinguished from a single crossing.
func (r Reconstructor) Stamp(st RolloverState, c Clock) (uint64, RolloverState) {
	wrapped := st.Seen && int(st.LastHour)-int(c.Hour) == 23
	next := st
	if wrapped || (c.HasDay && c.Day != 0) {
		next.Rollover = true
	}
	if next.Rollover && !st.Rollover {
		common.Debugf("timestamps wrapped past midnight at %s (previous hour %d)", c, st.LastHour)
	}
	next.Seen = true
	next.LastHour = c.Hour

	hour := uint64(c.Hour)
	if next.Rollover {
		hour += 24
	}
	ns := fracToNanos(c.Frac, c.FracDigits) +
		nsPerSecond*uint64(c.Second) +
		nsPerMinute*uint64(c.Minute) +
		nsPerHour*hour
	if r.Resolution == Millisecond {
		return ns / 1_000_000, next
	}
	return ns, next
}

// fracToNanos scales a fraction by the number of digits actually written:
// one digit is tenths, two are hundredths and so on.
func fracToNanos(frac uint64, digits int) uint64 {
	if digits <= 0 {
		return 0
	}
	scale := nsPerSecond
	for i := 0; i < digits; i++ {
		scale /= 10
	}
	return frac * scale
}
