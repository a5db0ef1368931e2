package grader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pelletier/go-toml/v2"

	"submission-grader/internal/judge"
)

// Features toggles the optional evaluation phases.
type Features struct {
	Format      bool `toml:"format" json:"format"`
	Metrics     bool `toml:"metrics" json:"metrics"`
	Similarity  bool `toml:"similarity" json:"similarity"`
	Performance bool `toml:"performance" json:"performance"`
}

// FormatConfig selects the analysis profile run against each submission.
type FormatConfig struct {
	Profile   string `toml:"profile" json:"profile"`
	ExtraArgs string `toml:"extra_args" json:"extra_args,omitempty"`
}

// Question is an exercise with its test cases, usually loaded from TOML:
//
//	id = "sum"
//	language = "python"
//
//	[features]
//	format = true
//	metrics = true
//
//	[format]
//	profile = "flake8"
//	extra_args = "--max-line-length=100"
//
//	[[cases]]
//	stdin = "3\n4\n"
//	expected_stdout = "7"
//	points = 1
type Question struct {
	ID       string           `toml:"id" json:"id"`
	Title    string           `toml:"title" json:"title,omitempty"`
	Language string           `toml:"language" json:"language"`
	Features Features         `toml:"features" json:"features"`
	Format   *FormatConfig    `toml:"format" json:"format,omitempty"`
	Cases    []judge.TestCase `toml:"cases" json:"cases"`
}

// LoadQuestion reads and validates a question file.
func LoadQuestion(path string) (*Question, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading question file: %w", err)
	}
	q, err := ParseQuestion(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return q, nil
}

// ParseQuestion decodes TOML, rejecting unknown keys, and validates.
func ParseQuestion(data []byte) (*Question, error) {
	var q Question
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&q); err != nil {
		return nil, fmt.Errorf("parsing question: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &q, nil
}

// Validate checks case points, fills missing case ids with their 1-based
// position and rejects duplicates.
func (q *Question) Validate() error {
	q.Language = strings.ToLower(strings.TrimSpace(q.Language))
	seen := mapset.NewThreadUnsafeSet[string]()
	for i := range q.Cases {
		tc := &q.Cases[i]
		if tc.ID == "" {
			tc.ID = strconv.Itoa(i + 1)
		}
		if !seen.Add(tc.ID) {
			return fmt.Errorf("duplicate test case id %q", tc.ID)
		}
		if err := tc.Validate(); err != nil {
			return err
		}
	}
	if q.Features.Format && q.Format != nil && q.Format.Profile == "" {
		return fmt.Errorf("format section needs a profile")
	}
	return nil
}

// MaxScore is the sum of all case points.
func (q *Question) MaxScore() float64 {
	var sum float64
	for _, tc := range q.Cases {
		sum += tc.Points
	}
	return sum
}
