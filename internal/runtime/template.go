package runtime

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"submission-grader/internal/config"
)

// TemplateRuntime is a toolchain declared in configuration. Its commands are
// shell-word templates with {src}, {exe}, {dir} and {class} placeholders,
// split once at load time and expanded per token so that paths containing
// spaces stay a single argument.
type TemplateRuntime struct {
	name    string
	ext     string
	image   string
	compile []string
	run     []string
}

func NewTemplateRuntime(name string, tc config.ToolchainConfig) (*TemplateRuntime, error) {
	if !strings.HasPrefix(tc.Extension, ".") {
		return nil, fmt.Errorf("extension must start with '.', got %q", tc.Extension)
	}
	run, err := shlex.Split(tc.RunCmd)
	if err != nil {
		return nil, fmt.Errorf("parsing run_cmd: %w", err)
	}
	if len(run) == 0 {
		return nil, fmt.Errorf("run_cmd is empty")
	}
	var compile []string
	if strings.TrimSpace(tc.CompileCmd) != "" {
		if compile, err = shlex.Split(tc.CompileCmd); err != nil {
			return nil, fmt.Errorf("parsing compile_cmd: %w", err)
		}
	}
	return &TemplateRuntime{
		name:    name,
		ext:     tc.Extension,
		image:   tc.Image,
		compile: compile,
		run:     run,
	}, nil
}

func (t *TemplateRuntime) Name() string { return t.name }

func (t *TemplateRuntime) Image() string { return t.image }

func (t *TemplateRuntime) FileExtension() string { return t.ext }

func (t *TemplateRuntime) SourceFileName(code string) string {
	if t.ext == ".java" {
		return PublicClass(code) + t.ext
	}
	return "main" + t.ext
}

func (t *TemplateRuntime) CompileCommand(srcPath string) []string {
	if len(t.compile) == 0 {
		return nil
	}
	return expand(t.compile, srcPath)
}

func (t *TemplateRuntime) Command(srcPath string) []string {
	return expand(t.run, srcPath)
}

func (t *TemplateRuntime) Validate(code string) error { return validateSize(code) }

func expand(tmpl []string, srcPath string) []string {
	r := strings.NewReplacer(
		"{src}", srcPath,
		"{exe}", stem(srcPath),
		"{dir}", filepath.Dir(srcPath),
		"{class}", filepath.Base(stem(srcPath)),
	)
	out := make([]string, len(tmpl))
	for i, tok := range tmpl {
		out[i] = r.Replace(tok)
	}
	return out
}
