package runtime

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// FallbackSuffix is used for languages nobody declared.
const FallbackSuffix = ".tmp"

var primarySuffix = map[string]string{
	"python": ".py",
	"c":      ".c",
	"cpp":    ".cpp",
	"java":   ".java",
	"pseint": ".psc",
}

var compatibleSuffixes = map[string]mapset.Set[string]{
	"python": mapset.NewSet(".py"),
	"c":      mapset.NewSet(".c", ".h"),
	"cpp":    mapset.NewSet(".cpp", ".cxx", ".cc", ".h", ".hpp"),
	"java":   mapset.NewSet(".java"),
	"pseint": mapset.NewSet(".psc"),
}

// Suffix returns the source file suffix for language, or FallbackSuffix.
func Suffix(language string) string {
	if s, ok := primarySuffix[strings.ToLower(language)]; ok {
		return s
	}
	return FallbackSuffix
}

// Compatible reports whether a file with suffix may hold code in language.
// Languages missing from the table are compatible with nothing.
func Compatible(language, suffix string) bool {
	set, ok := compatibleSuffixes[strings.ToLower(language)]
	return ok && set.Contains(strings.ToLower(suffix))
}

// CompatibleSuffixes lists the accepted suffixes for language, sorted.
func CompatibleSuffixes(language string) []string {
	set, ok := compatibleSuffixes[strings.ToLower(language)]
	if !ok {
		return nil
	}
	out := set.ToSlice()
	sort.Strings(out)
	return out
}
