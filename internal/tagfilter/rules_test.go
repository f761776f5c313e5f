package tagfilter

import (
	"testing"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
)

func tags(kv ...string) osm.Tags {
	var t osm.Tags
	for i := 0; i+1 < len(kv); i += 2 {
		t = append(t, osm.Tag{Key: kv[i], Value: kv[i+1]})
	}
	return t
}

func TestMatches(t *testing.T) {
	rs := NewRuleSet(false)
	rs.AddRule(true, "waterway", "")
	rs.AddRule(false, "waterway", "riverbank")
	rs.AddRule(true, "natural", "water")

	tests := []struct {
		name string
		tags osm.Tags
		want bool
	}{
		{"wildcard include", tags("waterway", "river"), true},
		{"exclude wins over wildcard", tags("waterway", "riverbank"), false},
		{"exclude on other tag", tags("natural", "water", "waterway", "riverbank"), false},
		{"exact include", tags("natural", "water"), true},
		{"exact mismatch", tags("natural", "wood"), false},
		{"no tags", nil, false},
		{"unrelated", tags("highway", "primary"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rs.Matches(tt.tags))
		})
	}
}

func TestMatchesDefaultInclude(t *testing.T) {
	rs := NewRuleSet(true)
	rs.AddRule(false, "highway", "")

	assert.True(t, rs.Matches(tags("waterway", "river")))
	assert.True(t, rs.Matches(nil))
	assert.False(t, rs.Matches(tags("highway", "primary", "waterway", "ditch")))
}

func TestDecideFirstMatchWins(t *testing.T) {
	rs := NewRuleSet(false)
	rs.AddRule(false, "waterway", "riverbank")
	rs.AddRule(true, "waterway", "")

	assert.False(t, rs.Decide("waterway", "riverbank"))
	assert.True(t, rs.Decide("waterway", "canal"))
	assert.False(t, rs.Decide("natural", "water"))
}

func TestClassifyKey(t *testing.T) {
	tests := []struct {
		tags osm.Tags
		keys []string
		want string
	}{
		{tags("natural", "water", "landuse", "basin"), WayKeys, "natural"},
		{tags("landuse", "basin", "waterway", "canal"), WayKeys, "waterway"},
		{tags("landuse", "reservoir"), AreaKeys, "landuse"},
		{tags("waterway", "dam"), AreaKeys, ""},
		{nil, WayKeys, ""},
	}
	for _, tt := range tests {
		if got := ClassifyKey(tt.tags, tt.keys); got != tt.want {
			t.Errorf("ClassifyKey(%v) = %q, want %q", tt.tags, got, tt.want)
		}
	}
}

func TestDefaultWaterRules(t *testing.T) {
	rs := DefaultWaterRules()
	assert.Equal(t, 4, rs.Len())
	assert.True(t, rs.Matches(tags("waterway", "stream")))
	assert.True(t, rs.Matches(tags("landuse", "reservoir")))
	assert.False(t, rs.Matches(tags("landuse", "forest")))
	assert.False(t, rs.Matches(tags("natural", "wood")))
}

func TestRuleString(t *testing.T) {
	tests := []struct {
		rule Rule
		want string
	}{
		{Rule{Key: "waterway", Wildcard: true, Include: true}, "waterway"},
		{Rule{Key: "natural", Value: "water", Include: true}, "natural=water"},
		{Rule{Key: "waterway", Value: "riverbank"}, "!waterway=riverbank"},
	}
	for _, tt := range tests {
		if got := tt.rule.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestRulesReturnsCopy(t *testing.T) {
	rs := DefaultWaterRules()
	rules := rs.Rules()
	rules[0].Key = "highway"
	assert.Equal(t, "waterway", rs.Rules()[0].Key)
}
