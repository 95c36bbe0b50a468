package policy

import (
	"maps"
	"slices"
	"strings"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/moderation"
)

// Request is the caller-facing sensitivity configuration of one submission.
// Levels overrides the defaults per check. When Checks is non-empty only the
// listed checks run. Required adds to the default required set.
type Request struct {
	Levels   map[string]string `json:"levels,omitempty"`
	Checks   []string          `json:"checks,omitempty"`
	Required []string          `json:"required,omitempty"`
}

// Defaults are the server-side sensitivity defaults.
type Defaults struct {
	Levels       map[string]string
	Required     []string
	MergeEpsilon float64
}

// Resolver turns submissions into immutable sensitivity snapshots.
type Resolver struct {
	table    *Table
	defaults Defaults
}

// NewResolver creates a resolver over table with server defaults.
func NewResolver(table *Table, defaults Defaults) *Resolver {
	if table == nil {
		table = Default()
	}
	return &Resolver{table: table, defaults: defaults}
}

// Table returns the policy table backing the resolver.
func (r *Resolver) Table() *Table {
	return r.table
}

// Snapshot validates req and resolves it against the policy table. Errors are
// validation errors naming the offending check or level.
func (r *Resolver) Snapshot(req Request) (moderation.SensitivityConfig, error) {
	levels := make(map[string]string, len(r.defaults.Levels))
	for k, v := range r.defaults.Levels {
		levels[normalizeName(k)] = normalizeName(v)
	}
	for k, v := range req.Levels {
		levels[normalizeName(k)] = normalizeName(v)
	}

	selected := slices.Collect(maps.Keys(levels))
	if len(req.Checks) > 0 {
		selected = selected[:0]
		for _, c := range req.Checks {
			name := normalizeName(c)
			if _, ok := levels[name]; !ok {
				if !moderation.CheckType(name).Valid() {
					return moderation.SensitivityConfig{}, invalidInput("unknown check %q", c)
				}
				return moderation.SensitivityConfig{}, invalidInput("no sensitivity level configured for check %q", c)
			}
			selected = append(selected, name)
		}
	}

	required := make(map[string]bool)
	for _, c := range slices.Concat(r.defaults.Required, req.Required) {
		required[normalizeName(c)] = true
	}

	cfg := moderation.SensitivityConfig{
		PolicyVersion: r.table.Version,
		MergeEpsilon:  r.defaults.MergeEpsilon,
		Checks:        make(map[moderation.CheckType]moderation.CheckConfig, len(selected)),
	}
	for _, name := range selected {
		check := moderation.CheckType(name)
		if !check.Valid() {
			return moderation.SensitivityConfig{}, invalidInput("unknown check %q", name)
		}
		level := moderation.Level(levels[name])
		if !level.Valid() {
			return moderation.SensitivityConfig{}, invalidInput("unknown sensitivity level %q for check %s", levels[name], name)
		}
		p, err := r.table.Resolve(check, level)
		if err != nil {
			return moderation.SensitivityConfig{}, err
		}
		cfg.Checks[check] = moderation.CheckConfig{Level: level, Policy: p, Required: required[name]}
	}

	// Default required checks may be excluded by an explicit subset; requested ones may not.
	for _, c := range req.Required {
		if _, ok := cfg.Checks[moderation.CheckType(normalizeName(c))]; !ok {
			return moderation.SensitivityConfig{}, invalidInput("required check %q is not part of the analysis", c)
		}
	}
	if len(cfg.Checks) == 0 {
		return moderation.SensitivityConfig{}, invalidInput("at least one check must be configured")
	}
	return cfg, nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func invalidInput(format string, args ...any) error {
	return errors.Newf(format, args...).
		Category(errors.CategoryValidation).
		Component("policy").
		Build()
}
