package judge

import (
	"regexp"
	"strconv"
	"strings"
)

var floatRe = regexp.MustCompile(`-?\d+\.\d+`)

// NormalizeLineEndings converts CRLF and bare CR to LF.
func NormalizeLineEndings(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}

// Normalize produces the comparison form of program output: LF line
// endings, text and lines trimmed, whitespace runs collapsed, optionally
// lower-cased, and every decimal literal rounded to four places.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string, caseInsensitive bool) string {
	s = strings.TrimSpace(NormalizeLineEndings(s))
	if s == "" {
		return ""
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	s = strings.Join(lines, "\n")

	if caseInsensitive {
		s = strings.ToLower(s)
	}

	s = floatRe.ReplaceAllStringFunc(s, func(lit string) string {
		v, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return lit
		}
		return strconv.FormatFloat(v, 'f', 4, 64)
	})
	return strings.TrimSpace(s)
}

// Equal reports whether expected and actual match after normalisation.
func Equal(expected, actual string, caseInsensitive bool) bool {
	return Normalize(expected, caseInsensitive) == Normalize(actual, caseInsensitive)
}
