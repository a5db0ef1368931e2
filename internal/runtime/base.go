package runtime

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"submission-grader/internal/config"
)

const maxSourceBytes = 1 << 20

var ErrUnsupportedLanguage = errors.New("unsupported language")

// Runtime describes how to build and execute a submission for one language.
type Runtime interface {
	// Name returns the language identifier (e.g., "python", "c", "java").
	Name() string

	// Image returns the container image used when isolation is enabled.
	Image() string

	// FileExtension returns the source suffix including the dot.
	FileExtension() string

	// SourceFileName picks the file name the code must be saved under.
	SourceFileName(code string) string

	// CompileCommand returns the build argv for srcPath, or nil when the
	// language runs straight from source.
	CompileCommand(srcPath string) []string

	// Command returns the base argv that runs the built submission. Test case
	// arguments are appended unchanged.
	Command(srcPath string) []string

	// Validate is a cheap pre-check before anything is written to disk.
	Validate(code string) error
}

// Registry maps language names to their Runtime implementations.
type Registry struct {
	runtimes map[string]Runtime
}

// NewRegistry creates a registry with the built-in toolchains plus any
// declared in configuration. A configured toolchain replaces a built-in one
// of the same name.
func NewRegistry(toolchains map[string]config.ToolchainConfig) (*Registry, error) {
	r := &Registry{
		runtimes: make(map[string]Runtime),
	}
	r.Register(&PythonRuntime{})
	r.Register(&CRuntime{})
	r.Register(&JavaRuntime{})

	for name, tc := range toolchains {
		rt, err := NewTemplateRuntime(name, tc)
		if err != nil {
			return nil, fmt.Errorf("toolchain %q: %w", name, err)
		}
		r.Register(rt)
	}
	return r, nil
}

// Register adds a runtime to the registry.
func (r *Registry) Register(rt Runtime) {
	r.runtimes[strings.ToLower(rt.Name())] = rt
}

// Get returns the runtime for the given language.
func (r *Registry) Get(language string) (Runtime, error) {
	rt, ok := r.runtimes[strings.ToLower(language)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedLanguage, language, strings.Join(r.Languages(), ", "))
	}
	return rt, nil
}

// Languages returns all registered language names, sorted.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.runtimes))
	for name := range r.runtimes {
		langs = append(langs, name)
	}
	sort.Strings(langs)
	return langs
}

// Images returns the distinct container images needed by registered runtimes.
func (r *Registry) Images() []string {
	seen := make(map[string]bool)
	images := make([]string, 0, len(r.runtimes))
	for _, name := range r.Languages() {
		img := r.runtimes[name].Image()
		if img == "" || seen[img] {
			continue
		}
		seen[img] = true
		images = append(images, img)
	}
	return images
}

// Suffix returns the source suffix for language, preferring a registered
// runtime and falling back to the static table.
func (r *Registry) Suffix(language string) string {
	if rt, ok := r.runtimes[strings.ToLower(language)]; ok {
		return rt.FileExtension()
	}
	return Suffix(language)
}

func validateSize(code string) error {
	if len(strings.TrimSpace(code)) == 0 {
		return fmt.Errorf("empty code")
	}
	if len(code) > maxSourceBytes {
		return fmt.Errorf("code too large: %d bytes (max 1MB)", len(code))
	}
	return nil
}

func stem(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}
