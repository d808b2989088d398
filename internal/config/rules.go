package config

import (
	"os"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/service"
	"github.com/Harshitk-cp/atomspace/internal/truth"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Rules is the YAML rule file.
//
//	params:
//	  abduction_penalty: 0.4
//	confidence_threshold: 0.2
//	enabled: [modus-ponens, inheritance-deduction]
//	rules:
//	  - name: member-to-inheritance
//	    formula: deduction
//	    ...
type Rules struct {
	Params              truth.Params   `yaml:"params"`
	ConfidenceThreshold float64        `yaml:"confidence_threshold"`
	Enabled             []string       `yaml:"enabled"`
	Custom              []service.Rule `yaml:"rules"`
}

func DefaultRules() *Rules {
	return &Rules{
		Params:              truth.DefaultParams(),
		ConfidenceThreshold: service.DefaultConfidenceThreshold,
	}
}

// LoadRules reads a rule file over the defaults. An empty path or a missing
// file yields the defaults.
func LoadRules(path string) (*Rules, error) {
	r := DefaultRules()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read rules file %s", path)
	}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, errors.Wrapf(err, "parse rules file %s", path)
	}
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold >= 1 {
		return nil, errors.Newf("confidence_threshold %v must be in [0, 1)", r.ConfidenceThreshold)
	}
	return r, nil
}

// Algebra builds the truth-value strategy table with the configured params.
func (r *Rules) Algebra() *truth.Algebra {
	return truth.NewAlgebra(r.Params)
}

// RuleSet validates the built-in and custom rules and keeps the enabled ones.
func (r *Rules) RuleSet(reg *domain.TypeRegistry) (*service.RuleSet, error) {
	all := append(service.DefaultRules(), r.Custom...)
	if len(r.Enabled) > 0 {
		want := make(map[string]bool, len(r.Enabled))
		for _, name := range r.Enabled {
			want[name] = true
		}
		kept := all[:0]
		for _, rule := range all {
			if want[rule.Name] {
				kept = append(kept, rule)
				delete(want, rule.Name)
			}
		}
		for name := range want {
			return nil, domain.NewQueryError("enabled rule %q is not defined", name)
		}
		all = kept
	}
	return service.NewRuleSet(reg, all...)
}
