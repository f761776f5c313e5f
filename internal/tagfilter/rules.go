package tagfilter

import (
	"strings"

	"github.com/paulmach/osm"
)

// Classifying key priorities. Linear waterway features win over area tags.
var (
	WayKeys  = []string{"waterway", "natural", "landuse"}
	AreaKeys = []string{"natural", "landuse"}
)

// Rule matches a single tag. An empty Value with Wildcard set matches any value.
type Rule struct {
	Key      string
	Value    string
	Wildcard bool
	Include  bool
}

// MatchTag checks whether the rule matches one key/value pair
func (r Rule) MatchTag(key, value string) bool {
	if r.Key != key {
		return false
	}
	return r.Wildcard || r.Value == value
}

// String renders the rule in expression syntax
func (r Rule) String() string {
	var sb strings.Builder
	if !r.Include {
		sb.WriteByte('!')
	}
	sb.WriteString(r.Key)
	if !r.Wildcard {
		sb.WriteByte('=')
		sb.WriteString(r.Value)
	}
	return sb.String()
}

// RuleSet is an ordered list of rules with a default polarity.
// It is built once at start-up and only read afterwards.
type RuleSet struct {
	rules          []Rule
	defaultInclude bool
}

// NewRuleSet creates an empty rule set. defaultInclude is the result for tags
// no rule matches.
func NewRuleSet(defaultInclude bool) *RuleSet {
	return &RuleSet{defaultInclude: defaultInclude}
}

// DefaultWaterRules returns the rule set used when nothing is configured
func DefaultWaterRules() *RuleSet {
	rs := NewRuleSet(false)
	rs.AddRule(true, "waterway", "")
	rs.AddRule(true, "natural", "water")
	rs.AddRule(true, "landuse", "reservoir")
	rs.AddRule(true, "landuse", "basin")
	return rs
}

// AddRule appends a rule. An empty value means any value for key.
func (rs *RuleSet) AddRule(include bool, key, value string) {
	rs.rules = append(rs.rules, Rule{
		Key:      key,
		Value:    value,
		Wildcard: value == "",
		Include:  include,
	})
}

// Add appends a parsed rule
func (rs *RuleSet) Add(r Rule) {
	rs.rules = append(rs.rules, r)
}

// Rules returns a copy of the rules in evaluation order
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Len returns the number of rules
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Decide returns the polarity of the first rule matching the tag, or the
// default polarity if none matches.
func (rs *RuleSet) Decide(key, value string) bool {
	for _, r := range rs.rules {
		if r.MatchTag(key, value) {
			return r.Include
		}
	}
	return rs.defaultInclude
}

// Matches returns true if an include rule matches some tag and no exclude
// rule matches any tag. Exclusion takes precedence over inclusion. With a
// default polarity of include, everything not excluded matches.
func (rs *RuleSet) Matches(tags osm.Tags) bool {
	included := false
	for _, tag := range tags {
		for _, r := range rs.rules {
			if !r.MatchTag(tag.Key, tag.Value) {
				continue
			}
			if !r.Include {
				return false
			}
			included = true
		}
	}
	return included || rs.defaultInclude
}

// ClassifyKey returns the first key of keys present in tags, or "" if none is
func ClassifyKey(tags osm.Tags, keys []string) string {
	for _, key := range keys {
		if tags.HasTag(key) {
			return key
		}
	}
	return ""
}
