// Package policy loads the versioned sensitivity policy table and resolves
// per-job sensitivity snapshots from it.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/moderation"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// LevelPolicies maps each sensitivity level to its policy.
type LevelPolicies map[moderation.Level]moderation.LevelPolicy

// Table maps sensitivity levels to concrete thresholds. It is loaded once at
// startup and treated as read-only.
type Table struct {
	Version string                                 `yaml:"version" json:"version"`
	Levels  LevelPolicies                          `yaml:"levels" json:"levels"`
	Checks  map[moderation.CheckType]LevelPolicies `yaml:"checks,omitempty" json:"checks,omitempty"`
}

// Default returns the built-in policy table.
func Default() *Table {
	t, err := Parse(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in policy table is invalid: %v", err))
	}
	return t
}

// Load reads a policy table from path, or returns the built-in table when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("read policy table: %w", err)).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return Parse(data)
}

// Parse decodes and validates a YAML policy table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.New(fmt.Errorf("parse policy table: %w", err)).
			Category(errors.CategoryPolicyConfig).
			Build()
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks that every level is defined and every threshold is in range.
func (t *Table) Validate() error {
	var problems []string
	if strings.TrimSpace(t.Version) == "" {
		problems = append(problems, "version is required")
	}
	for _, level := range moderation.Levels {
		p, ok := t.Levels[level]
		if !ok {
			problems = append(problems, fmt.Sprintf("level %q is not defined", level))
			continue
		}
		problems = append(problems, validateLevelPolicy(string(level), p)...)
	}
	for level := range t.Levels {
		if !level.Valid() {
			problems = append(problems, fmt.Sprintf("unknown level %q", level))
		}
	}
	for check, overrides := range t.Checks {
		if !check.Valid() {
			problems = append(problems, fmt.Sprintf("unknown check %q", check))
			continue
		}
		for level, p := range overrides {
			if !level.Valid() {
				problems = append(problems, fmt.Sprintf("%s: unknown level %q", check, level))
				continue
			}
			problems = append(problems, validateLevelPolicy(fmt.Sprintf("%s.%s", check, level), p)...)
		}
	}
	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return errors.Newf("invalid policy table: %s", strings.Join(problems, "; ")).
		Category(errors.CategoryPolicyConfig).
		Context("version", t.Version).
		Build()
}

func validateLevelPolicy(name string, p moderation.LevelPolicy) []string {
	var problems []string
	if p.Threshold < 0 || p.Threshold > 100 {
		problems = append(problems, fmt.Sprintf("%s: threshold %.1f outside 0-100", name, p.Threshold))
	}
	if p.MinIntervals < 0 {
		problems = append(problems, fmt.Sprintf("%s: min_intervals must not be negative", name))
	}
	if p.MinDuration < 0 {
		problems = append(problems, fmt.Sprintf("%s: min_duration must not be negative", name))
	}
	return problems
}

// Resolve returns the policy for check at level, honoring per-check overrides.
func (t *Table) Resolve(check moderation.CheckType, level moderation.Level) (moderation.LevelPolicy, error) {
	if !check.Valid() {
		return moderation.LevelPolicy{}, errors.Newf("unknown check %q", check).
			Category(errors.CategoryValidation).
			Build()
	}
	if override, ok := t.Checks[check][level]; ok {
		return override, nil
	}
	p, ok := t.Levels[level]
	if !ok {
		return moderation.LevelPolicy{}, errors.Newf("unknown sensitivity level %q for check %s", level, check).
			Category(errors.CategoryValidation).
			Build()
	}
	return p, nil
}
