package listener

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type timeoutKind int

const (
	timeoutUnset timeoutKind = iota
	timeoutRelative
	timeoutAbsolute
)

// Timeout tells the listen loop when to stop. It is either a number of
// minutes from the moment listening starts, or a local time of day.
type Timeout struct {
	kind    timeoutKind
	minutes int
	hour    int
	minute  int
}

// RelativeMinutes returns a timeout that expires n minutes after it is resolved.
func RelativeMinutes(n int) (Timeout, error) {
	if n < 0 {
		return Timeout{}, fmt.Errorf("%w: negative minutes %d", ErrInvalidTimeoutKind, n)
	}
	return Timeout{kind: timeoutRelative, minutes: n}, nil
}

// AbsoluteTimeOfDay returns a timeout that expires at the next hour:minute
// of the local clock.
func AbsoluteTimeOfDay(hour, minute int) (Timeout, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Timeout{}, fmt.Errorf("%w: time of day %d:%d out of range", ErrInvalidTimeoutKind, hour, minute)
	}
	return Timeout{kind: timeoutAbsolute, hour: hour, minute: minute}, nil
}

// Resolve turns the timeout into an absolute deadline relative to now.
//
// An absolute time of day that has already passed today rolls over to the
// same time tomorrow. The result is aligned to the start of the target minute.
func (t Timeout) Resolve(now time.Time) (time.Time, error) {
	switch t.kind {
	case timeoutRelative:
		return now.Add(time.Duration(t.minutes) * time.Minute), nil
	case timeoutAbsolute:
		day := now.Day()
		if t.hour*60+t.minute < now.Hour()*60+now.Minute() {
			day++
		}
		return time.Date(now.Year(), now.Month(), day, t.hour, t.minute, 0, 0, now.Location()), nil
	default:
		return time.Time{}, ErrInvalidTimeoutKind
	}
}

func (t Timeout) String() string {
	switch t.kind {
	case timeoutRelative:
		return fmt.Sprintf("%d minutes", t.minutes)
	case timeoutAbsolute:
		return fmt.Sprintf("%02d:%02d", t.hour, t.minute)
	default:
		return "invalid"
	}
}

// ParseTimeout accepts the shapes a timeout arrives in from flags and
// config files: an integer number of minutes, a two element [hour, minute]
// list, or a string holding either "30", "13:30" or "[13, 30]".
func ParseTimeout(v any) (Timeout, error) {
	switch val := v.(type) {
	case int:
		return RelativeMinutes(val)
	case int64:
		return RelativeMinutes(int(val))
	case float64:
		if val != float64(int(val)) {
			return Timeout{}, fmt.Errorf("%w: fractional minutes %v", ErrInvalidTimeoutKind, val)
		}
		return RelativeMinutes(int(val))
	case []int:
		if len(val) != 2 {
			return Timeout{}, fmt.Errorf("%w: expected 2 elements, got %d", ErrInvalidTimeoutKind, len(val))
		}
		return AbsoluteTimeOfDay(val[0], val[1])
	case []any:
		if len(val) != 2 {
			return Timeout{}, fmt.Errorf("%w: expected 2 elements, got %d", ErrInvalidTimeoutKind, len(val))
		}
		hour, err := toInt(val[0])
		if err != nil {
			return Timeout{}, err
		}
		minute, err := toInt(val[1])
		if err != nil {
			return Timeout{}, err
		}
		return AbsoluteTimeOfDay(hour, minute)
	case string:
		return parseTimeoutString(val)
	default:
		return Timeout{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidTimeoutKind, v)
	}
}

func parseTimeoutString(s string) (Timeout, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return RelativeMinutes(n)
	}

	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	sep := ":"
	if strings.Contains(s, ",") {
		sep = ","
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return Timeout{}, fmt.Errorf("%w: %q", ErrInvalidTimeoutKind, s)
	}

	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Timeout{}, fmt.Errorf("%w: %q", ErrInvalidTimeoutKind, s)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Timeout{}, fmt.Errorf("%w: %q", ErrInvalidTimeoutKind, s)
	}
	return AbsoluteTimeOfDay(hour, minute)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidTimeoutKind, v)
}
