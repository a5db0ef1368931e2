package format

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"
)

// Truncate cuts s to at most max runes and appends marker when it did.
func Truncate(s string, max int, marker string) string {
	if max < 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + marker
}

// Level is a traffic-light rating.
type Level int

const (
	Good Level = iota
	Fair
	Poor
)

func (l Level) Mark() string {
	switch l {
	case Good:
		return "🟢"
	case Fair:
		return "🟡"
	default:
		return "🔴"
	}
}

// LowerIsBetter rates v: Good below good, Fair below fair, else Poor.
func LowerIsBetter(v, good, fair float64) Level {
	switch {
	case v < good:
		return Good
	case v < fair:
		return Fair
	default:
		return Poor
	}
}

// HigherIsBetter rates v: Good above good, Fair above fair, else Poor.
func HigherIsBetter(v, good, fair float64) Level {
	switch {
	case v > good:
		return Good
	case v > fair:
		return Fair
	default:
		return Poor
	}
}

// Num renders a float in its shortest exact form ("3", "72.5").
func Num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Millis formats a duration as fractional milliseconds.
func Millis(d time.Duration) string {
	return fmt.Sprintf("%.2f ms", float64(d.Microseconds())/1000)
}

func YesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
