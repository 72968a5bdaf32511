// Package scorer assigns a priority to validated lead records by evaluating
// a configured rule set. Evaluation is pure and deterministic: the same
// record and rule set always produce the same score and label list.
package scorer

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Operators a rule predicate may use.
const (
	OpEquals   = "equals"
	OpContains = "contains"
	OpPrefix   = "prefix"
	OpRegex    = "regex"
	OpExists   = "exists"
	OpGT       = "gt"
	OpGTE      = "gte"
	OpLT       = "lt"
	OpLTE      = "lte"
)

// Rule is one predicate over a lead record. When the predicate matches, the
// rule's weight is added to the record's score and its label recorded.
type Rule struct {
	Label  string  `yaml:"label"`
	Field  string  `yaml:"field"`
	Op     string  `yaml:"op"`
	Value  string  `yaml:"value"`
	Weight float64 `yaml:"weight"`

	re  *regexp.Regexp
	num float64
}

// RuleSet is an ordered list of rules plus the score clamp range.
type RuleSet struct {
	Rules    []Rule  `yaml:"rules"`
	MinScore float64 `yaml:"min_score"`
	MaxScore float64 `yaml:"max_score"`
}

// stringFields maps rule field names to their accessor. Enriched values fall
// back to raw input values where the record carries both.
var stringFields = map[string]func(model.LeadRecord) string{
	"first_name":   func(r model.LeadRecord) string { return r.FirstName },
	"last_name":    func(r model.LeadRecord) string { return r.LastName },
	"company":      func(r model.LeadRecord) string { return r.Company },
	"domain":       func(r model.LeadRecord) string { return r.Domain },
	"email":        func(r model.LeadRecord) string { return r.BestEmail() },
	"title":        func(r model.LeadRecord) string { return r.Enrichment.Title },
	"industry":     func(r model.LeadRecord) string { return r.Enrichment.Industry },
	"linkedin_url": func(r model.LeadRecord) string { return r.Enrichment.LinkedInURL },
}

var numericFields = map[string]func(model.LeadRecord) float64{
	"company_size":     func(r model.LeadRecord) float64 { return float64(r.Enrichment.CompanySize) },
	"email_confidence": func(r model.LeadRecord) float64 { return float64(r.Enrichment.EmailConfidence) },
}

// LoadRuleSet reads and validates a YAML rule set from disk. Any problem is
// a configuration error and should abort the run.
func LoadRuleSet(path string) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scorer: read rule set %s", path)
	}
	return ParseRuleSet(raw)
}

// ParseRuleSet decodes and validates a YAML rule set, precompiling regex
// predicates and numeric comparison values.
func ParseRuleSet(raw []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, eris.Wrap(err, "scorer: parse rule set")
	}
	if rs.MaxScore == 0 && rs.MinScore == 0 {
		rs.MaxScore = 100
	}
	if err := rs.validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

func (rs *RuleSet) validate() error {
	var errs []string

	if rs.MaxScore < rs.MinScore {
		errs = append(errs, "max_score must be >= min_score")
	}
	if len(rs.Rules) == 0 {
		errs = append(errs, "rule set must contain at least one rule")
	}

	for i := range rs.Rules {
		r := &rs.Rules[i]
		where := fmt.Sprintf("rule %d (%s)", i, r.Label)

		if r.Label == "" {
			errs = append(errs, fmt.Sprintf("rule %d: label is required", i))
		}

		_, isStr := stringFields[r.Field]
		_, isNum := numericFields[r.Field]
		if !isStr && !isNum {
			errs = append(errs, fmt.Sprintf("%s: unknown field %q", where, r.Field))
			continue
		}

		switch r.Op {
		case OpEquals, OpContains, OpPrefix:
			if !isStr {
				errs = append(errs, fmt.Sprintf("%s: op %s requires a string field", where, r.Op))
			}
		case OpRegex:
			if !isStr {
				errs = append(errs, fmt.Sprintf("%s: op regex requires a string field", where))
				continue
			}
			re, err := regexp.Compile(r.Value)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: invalid regex: %v", where, err))
				continue
			}
			r.re = re
		case OpGT, OpGTE, OpLT, OpLTE:
			if !isNum {
				errs = append(errs, fmt.Sprintf("%s: op %s requires a numeric field", where, r.Op))
				continue
			}
			n, err := strconv.ParseFloat(r.Value, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: value %q is not numeric", where, r.Value))
				continue
			}
			r.num = n
		case OpExists:
			// Matches any non-zero value; no comparison value needed.
		default:
			errs = append(errs, fmt.Sprintf("%s: unknown op %q", where, r.Op))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: rule set validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
