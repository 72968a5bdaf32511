package scorer

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Score evaluates the rule set against a record in configured order. Each
// matching rule contributes its weight; the sum is clamped to the rule set's
// [MinScore, MaxScore] range. Labels are returned in evaluation order.
func Score(rec model.LeadRecord, rs *RuleSet) (float64, []string) {
	var total float64
	var labels []string

	for i := range rs.Rules {
		r := &rs.Rules[i]
		if !matches(rec, r) {
			continue
		}
		total += r.Weight
		labels = append(labels, r.Label)
	}

	if total < rs.MinScore {
		total = rs.MinScore
	}
	if total > rs.MaxScore {
		total = rs.MaxScore
	}
	return total, labels
}

// Apply scores every record in place and tallies the run's scored count.
func Apply(run *model.BatchRun, records []model.LeadRecord, rs *RuleSet) []model.LeadRecord {
	for i := range records {
		records[i].Priority, records[i].RuleLabels = Score(records[i], rs)
		run.Stats.Scored++
	}
	zap.L().Info("scoring complete",
		zap.String("run_id", run.ID),
		zap.Int("records", len(records)),
		zap.Int("rules", len(rs.Rules)),
	)
	return records
}

// matches applies one predicate. String comparisons are case-insensitive;
// lead data arrives with inconsistent casing across sources.
func matches(rec model.LeadRecord, r *Rule) bool {
	if get, ok := numericFields[r.Field]; ok {
		v := get(rec)
		switch r.Op {
		case OpExists:
			return v != 0
		case OpGT:
			return v > r.num
		case OpGTE:
			return v >= r.num
		case OpLT:
			return v < r.num
		case OpLTE:
			return v <= r.num
		}
		return false
	}

	v := stringFields[r.Field](rec)
	switch r.Op {
	case OpExists:
		return strings.TrimSpace(v) != ""
	case OpEquals:
		return strings.EqualFold(v, r.Value)
	case OpContains:
		return strings.Contains(strings.ToLower(v), strings.ToLower(r.Value))
	case OpPrefix:
		return strings.HasPrefix(strings.ToLower(v), strings.ToLower(r.Value))
	case OpRegex:
		return r.re.MatchString(v)
	}
	return false
}
