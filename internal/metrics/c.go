package metrics

import (
	"regexp"
	"strings"
)

var (
	cFuncRe = regexp.MustCompile(`^\s*(?:static\s+|inline\s+|extern\s+)*(?:(?:unsigned|signed|struct|enum|const)\s+)*[A-Za-z_]\w*[\s*]+([A-Za-z_]\w*)\s*\([^;]*\)\s*\{`)

	cIfRe     = regexp.MustCompile(`\bif\s*\(`)
	cForRe    = regexp.MustCompile(`\bfor\s*\(`)
	cWhileRe  = regexp.MustCompile(`\bwhile\s*\(`)
	cSwitchRe = regexp.MustCompile(`\bswitch\s*\(`)
	cCaseRe   = regexp.MustCompile(`\bcase\b`)
)

var cNotFunctions = map[string]bool{"if": true, "for": true, "while": true, "switch": true, "return": true, "sizeof": true}

// cScanner splits a line into code and comment parts, carrying block
// comment state across lines. String and char literals are skipped so that
// "//" inside them is not a comment.
type cScanner struct {
	inBlock bool
}

func (s *cScanner) split(line string) (code string, hadComment bool) {
	var b strings.Builder
	var quote byte
	hadComment = s.inBlock
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case s.inBlock:
			hadComment = true
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				s.inBlock = false
				i++
			}
		case quote != 0:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(line) {
				b.WriteByte(line[i+1])
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			b.WriteByte(c)
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return b.String(), true
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			hadComment = true
			s.inBlock = true
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), hadComment
}

// addC runs the single forward pass over C/C++ lines.
func addC(r *Report, code string) {
	counters := map[string]int{}
	lines := strings.Split(code, "\n")

	var (
		scan    cScanner
		current *FunctionMetrics
		depth   int
	)

	for i, line := range lines {
		if !scan.inBlock && strings.TrimSpace(line) == "" {
			counters["blank_lines"]++
			continue
		}

		text, hadComment := scan.split(line)
		if hadComment {
			counters["comment_lines"]++
		}
		stripped := strings.TrimSpace(text)
		if stripped == "" {
			continue
		}
		counters["code_lines"]++

		if strings.HasPrefix(stripped, "#include") {
			counters["include_count"]++
		} else if strings.HasPrefix(stripped, "#") {
			counters["preprocessor_count"]++
		}

		ifs := len(cIfRe.FindAllStringIndex(text, -1))
		fors := len(cForRe.FindAllStringIndex(text, -1))
		whiles := len(cWhileRe.FindAllStringIndex(text, -1))
		cases := len(cCaseRe.FindAllStringIndex(text, -1))
		counters["if_count"] += ifs
		counters["for_count"] += fors
		counters["while_count"] += whiles
		counters["switch_count"] += len(cSwitchRe.FindAllStringIndex(text, -1))
		branches := ifs + fors + whiles + cases
		counters["estimated_cyclomatic"] += branches

		if current == nil {
			if m := cFuncRe.FindStringSubmatch(text); m != nil && !cNotFunctions[m[1]] {
				r.Functions = append(r.Functions, FunctionMetrics{Name: m[1], StartLine: i + 1, Complexity: 1})
				current = &r.Functions[len(r.Functions)-1]
				depth = 0
			}
		}
		if current != nil {
			current.Complexity += branches
			depth += strings.Count(text, "{") - strings.Count(text, "}")
			if depth <= 0 {
				current.Lines = i + 1 - current.StartLine + 1
				current = nil
			}
		}
	}
	if current != nil {
		current.Lines = len(lines) - current.StartLine + 1
	}

	for _, k := range []string{"code_lines", "comment_lines", "blank_lines", "if_count", "for_count",
		"while_count", "switch_count", "estimated_cyclomatic", "include_count", "preprocessor_count"} {
		r.Counters[k] = float64(counters[k])
	}
	r.Counters["function_count"] = float64(len(r.Functions))
}
