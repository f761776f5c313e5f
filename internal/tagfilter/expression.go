package tagfilter

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidExpression is returned for malformed rule expressions
var ErrInvalidExpression = errors.New("invalid filter expression")

// ParseExpression parses a rule in the form [!]key[=value].
// A leading '!' makes an exclude rule. A missing value or "*" matches any value.
func ParseExpression(expr string) (Rule, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return Rule{}, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}

	r := Rule{Include: true}
	if s[0] == '!' {
		r.Include = false
		s = s[1:]
	}

	key, value, hasValue := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return Rule{}, fmt.Errorf("%w: %q: empty key", ErrInvalidExpression, expr)
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return Rule{}, fmt.Errorf("%w: %q: key contains whitespace", ErrInvalidExpression, expr)
	}
	r.Key = key

	if !hasValue {
		r.Wildcard = true
		return r, nil
	}

	value = strings.TrimSpace(value)
	switch value {
	case "":
		return Rule{}, fmt.Errorf("%w: %q: empty value", ErrInvalidExpression, expr)
	case "*":
		r.Wildcard = true
	default:
		r.Value = value
	}
	return r, nil
}

// ParseExpressions parses a list of expressions into a rule set with a
// default polarity of exclude
func ParseExpressions(exprs []string) (*RuleSet, error) {
	rs := NewRuleSet(false)
	for _, expr := range exprs {
		r, err := ParseExpression(expr)
		if err != nil {
			return nil, err
		}
		rs.Add(r)
	}
	return rs, nil
}
