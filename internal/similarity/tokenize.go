package similarity

import (
	"strings"
	"text/scanner"

	mapset "github.com/deckarep/golang-set/v2"
)

// Placeholder tokens so renamed identifiers and changed literals still match.
const (
	tokIdent  = "V"
	tokNumber = "N"
	tokString = "S"
)

var keywords = mapset.NewSet(
	// shared C / Java / Python control flow
	"if", "else", "for", "while", "do", "return", "break", "continue", "switch", "case", "default",
	// C / Java
	"int", "long", "short", "char", "float", "double", "void", "unsigned", "signed", "struct",
	"enum", "union", "typedef", "static", "const", "sizeof", "goto", "class", "public", "private",
	"protected", "new", "try", "catch", "finally", "throw", "throws", "import", "package", "boolean",
	// Python
	"def", "elif", "in", "not", "and", "or", "is", "lambda", "pass", "with", "as", "from", "yield",
	"global", "nonlocal", "del", "assert", "raise", "except", "None", "True", "False",
)

// Tokenize turns source into a normalised token stream. Identifiers that are
// not keywords become one placeholder, as do numeric and string literals.
func Tokenize(source, language string) []string {
	var mode uint = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanChars | scanner.ScanStrings
	if strings.EqualFold(language, "python") {
		// '//' is floor division in Python; only '#' starts a comment.
		source = stripHashComments(source)
	} else {
		mode |= scanner.ScanComments | scanner.SkipComments
	}

	var s scanner.Scanner
	s.Init(strings.NewReader(source))
	s.Mode = mode
	s.Error = func(*scanner.Scanner, string) {}

	var toks []string
	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		switch tok {
		case scanner.Ident:
			if text := s.TokenText(); keywords.Contains(text) {
				toks = append(toks, text)
			} else {
				toks = append(toks, tokIdent)
			}
		case scanner.Int, scanner.Float:
			toks = append(toks, tokNumber)
		case scanner.String, scanner.Char, scanner.RawString:
			toks = append(toks, tokString)
		default:
			toks = append(toks, s.TokenText())
		}
	}
	return toks
}

// stripHashComments drops '#' comments outside string literals.
func stripHashComments(source string) string {
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		var quote byte
		for j := 0; j < len(line); j++ {
			c := line[j]
			switch {
			case quote != 0:
				if c == '\\' {
					j++
				} else if c == quote {
					quote = 0
				}
			case c == '"' || c == '\'':
				quote = c
			case c == '#':
				lines[i] = line[:j]
				j = len(line)
			}
		}
	}
	return strings.Join(lines, "\n")
}
