package detector

import (
	"sync"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/moderation"
)

// Registry holds one detector per check type.
type Registry struct {
	mu        sync.RWMutex
	detectors map[moderation.CheckType]Detector
}

// NewRegistry creates a registry with the given detectors.
func NewRegistry(detectors ...Detector) (*Registry, error) {
	r := &Registry{detectors: make(map[moderation.CheckType]Detector)}
	for _, d := range detectors {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds d, replacing any detector registered for the same check.
func (r *Registry) Register(d Detector) error {
	if d == nil {
		return errors.Newf("cannot register nil detector").Category(errors.CategoryValidation).Build()
	}
	if !d.Check().Valid() {
		return errors.Newf("detector %s reports unknown check %q", d.Name(), d.Check()).
			Category(errors.CategoryValidation).
			Build()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors[d.Check()] = d
	return nil
}

// Get returns the detector for check.
func (r *Registry) Get(check moderation.CheckType) (Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[check]
	return d, ok
}

// Checks returns the registered checks in canonical order.
func (r *Registry) Checks() []moderation.CheckType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]moderation.CheckType, 0, len(r.detectors))
	for _, c := range moderation.AllChecks {
		if _, ok := r.detectors[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Supports reports whether every check in cfg has a registered detector.
func (r *Registry) Supports(cfg moderation.SensitivityConfig) error {
	for _, c := range cfg.CheckOrder() {
		if _, ok := r.Get(c); !ok {
			return errors.Newf("no detector registered for check %q", c).
				Category(errors.CategoryValidation).
				Build()
		}
	}
	return nil
}
