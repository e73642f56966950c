package tagstore

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

const nsPerSec = int64(1_000_000_000)

var (
	timestampPattern = regexp.MustCompile(`^(-?[0-9]+)\.([0-9]{9})$`)

	maxSec = math.MaxInt64 / nsPerSec
	minSec = math.MinInt64/nsPerSec - 1

	errTimestampFormat = errors.New(`want "<seconds>.<9-digit nanoseconds>"`)
	errTimestampRange  = errors.New("out of range")
)

// FormatTimestamp renders ns as "<seconds>.<nanoseconds>" with exactly nine
// zero-padded fraction digits. Seconds are floored, so the fraction is never
// negative.
func FormatTimestamp(ns int64) string {
	sec := ns / nsPerSec
	frac := ns % nsPerSec
	if frac < 0 {
		sec--
		frac += nsPerSec
	}
	return fmt.Sprintf("%d.%09d", sec, frac)
}

// ParseTimestamp is the inverse of FormatTimestamp. Input must match the
// format exactly; no surrounding whitespace is accepted.
func ParseTimestamp(text string) (int64, error) {
	m := timestampPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, errTimestampFormat
	}
	sec, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || sec > maxSec || sec < minSec {
		return 0, errTimestampRange
	}
	frac, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, errTimestampFormat
	}

	if sec >= 0 {
		if frac > math.MaxInt64-sec*nsPerSec {
			return 0, errTimestampRange
		}
		return sec*nsPerSec + frac, nil
	}
	// (sec+1)*1e9 cannot overflow for sec >= minSec; borrow one second.
	base := (sec + 1) * nsPerSec
	adj := frac - nsPerSec
	if base < math.MinInt64-adj {
		return 0, errTimestampRange
	}
	return base + adj, nil
}
