package compute

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/obsidianstack/rfmstack/pkg/types"
)

// SegmentOthers is assigned when no rule matches.
const SegmentOthers = "Others"

// Rule names a segment and the conditions a record must satisfy, all of them,
// to belong to it. Rules are evaluated in order; the first match wins.
type Rule struct {
	Name       string
	Conditions []string
}

// DefaultRules is the classic five-bucket segmentation.
var DefaultRules = []Rule{
	{Name: "Champions", Conditions: []string{"r_score >= 4", "f_score >= 4", "m_score >= 4"}},
	{Name: "Loyal Customers", Conditions: []string{"r_score >= 3", "f_score >= 3"}},
	{Name: "Potential Loyalists", Conditions: []string{"r_score >= 4", "f_score <= 2"}},
	{Name: "At Risk", Conditions: []string{"r_score <= 2"}},
}

// condition is a parsed "field operator value" expression.
type condition struct {
	field string
	op    string
	value decimal.Decimal
}

type compiledRule struct {
	name  string
	conds []condition
}

// compileRules parses every condition up front so a bad rule fails the run
// before any data is read.
func compileRules(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("%w: segments[%d]: name is required", ErrConfiguration, i)
		}
		cr := compiledRule{name: r.Name}
		for _, c := range r.Conditions {
			cond, err := parseCondition(c)
			if err != nil {
				return nil, fmt.Errorf("segments[%d] %q: %w", i, r.Name, err)
			}
			cr.conds = append(cr.conds, cond)
		}
		out = append(out, cr)
	}
	return out, nil
}

// parseCondition parses expressions such as:
//
//	r_score >= 4
//	f_score <= 2
//	recency_days < 90
//	monetary > 1000.50
func parseCondition(s string) (condition, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("%w: condition %q: want \"field op value\"", ErrConfiguration, s)
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "r_score", "f_score", "m_score", "recency_days", "frequency", "monetary":
	default:
		return condition{}, fmt.Errorf("%w: condition %q: unknown field %q", ErrConfiguration, s, field)
	}
	switch op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return condition{}, fmt.Errorf("%w: condition %q: unknown operator %q", ErrConfiguration, s, op)
	}
	v, err := decimal.NewFromString(rhs)
	if err != nil {
		return condition{}, fmt.Errorf("%w: condition %q: bad value: %v", ErrConfiguration, s, err)
	}
	return condition{field: field, op: op, value: v}, nil
}

func (c condition) matches(r *types.Record) bool {
	return compare(fieldValue(c.field, r).Cmp(c.value), c.op)
}

// fieldValue maps a field name to its value in the record.
func fieldValue(field string, r *types.Record) decimal.Decimal {
	switch field {
	case "r_score":
		return decimal.NewFromInt(int64(r.RecencyScore))
	case "f_score":
		return decimal.NewFromInt(int64(r.FrequencyScore))
	case "m_score":
		return decimal.NewFromInt(int64(r.MonetaryScore))
	case "recency_days":
		return decimal.NewFromInt(int64(r.RecencyDays))
	case "frequency":
		return decimal.NewFromInt(int64(r.Frequency))
	case "monetary":
		return r.MonetaryValue
	default:
		return decimal.Zero
	}
}

// compare applies op to the result of a Cmp call.
func compare(c int, op string) bool {
	switch op {
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case "==":
		return c == 0
	case "!=":
		return c != 0
	default:
		return false
	}
}

func classify(r *types.Record, rules []compiledRule) string {
	for _, rule := range rules {
		ok := true
		for _, c := range rule.conds {
			if !c.matches(r) {
				ok = false
				break
			}
		}
		if ok {
			return rule.name
		}
	}
	return SegmentOthers
}
