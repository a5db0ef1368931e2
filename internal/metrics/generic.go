package metrics

import (
	"strings"
	"unicode/utf8"
)

// addGeneric records line statistics that apply to every language.
func addGeneric(r *Report, code string) {
	lines := strings.Split(code, "\n")
	r.Counters["total_lines"] = float64(len(lines))

	var nonEmpty, total, longest int
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := utf8.RuneCountInString(line)
		nonEmpty++
		total += n
		longest = max(longest, n)
	}
	r.Counters["non_empty_lines"] = float64(nonEmpty)
	r.Counters["max_line_length"] = float64(longest)
	if nonEmpty > 0 {
		r.Counters["avg_line_length"] = round1(float64(total) / float64(nonEmpty))
	} else {
		r.Counters["avg_line_length"] = 0
	}
}
