package perf

import (
	"errors"
	"regexp"
	"strings"
)

var ErrNoEntryPoint = errors.New("no entry point function found")

// EntryPointDetector picks the function the harness calls with the
// generated input.
type EntryPointDetector interface {
	Detect(source, language string) (string, error)
}

// DefaultVerbs are the names preferred by VerbHeuristic, in priority order.
var DefaultVerbs = []string{"sort", "search", "find", "solve", "process", "calc", "merge", "partition"}

var (
	pyDefRe  = regexp.MustCompile(`(?m)^[ \t]*def\s+([A-Za-z_]\w*)\s*\(`)
	cDefnRe  = regexp.MustCompile(`(\w+)\s+(\w+)\s*\([^)]*\)\s*\{`)
	cKeyword = map[string]bool{"if": true, "for": true, "while": true, "switch": true, "return": true, "else": true, "sizeof": true}
)

// VerbHeuristic chooses the first function whose lower-cased name contains
// a verb, trying verbs in order, then falls back to the first function.
// C's main is never chosen.
type VerbHeuristic struct {
	Verbs []string
}

func (h VerbHeuristic) Detect(source, language string) (string, error) {
	var names []string
	switch strings.ToLower(language) {
	case "python":
		for _, m := range pyDefRe.FindAllStringSubmatch(source, -1) {
			names = append(names, m[1])
		}
	default:
		for _, m := range cDefnRe.FindAllStringSubmatch(source, -1) {
			if m[2] != "main" && !cKeyword[m[1]] && !cKeyword[m[2]] {
				names = append(names, m[2])
			}
		}
	}
	if len(names) == 0 {
		return "", ErrNoEntryPoint
	}

	verbs := h.Verbs
	if len(verbs) == 0 {
		verbs = DefaultVerbs
	}
	for _, verb := range verbs {
		for _, name := range names {
			if strings.Contains(strings.ToLower(name), verb) {
				return name, nil
			}
		}
	}
	return names[0], nil
}
