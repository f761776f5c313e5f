package tagfilter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleFile is the YAML rules layout:
//
//	default: exclude
//	include:
//	  waterway: []
//	  natural: [water]
//	exclude:
//	  waterway: [riverbank]
//
// An empty list, null, or "*" means any value. Keys keep file order.
type ruleFile struct {
	Default string    `yaml:"default,omitempty"`
	Include yaml.Node `yaml:"include,omitempty"`
	Exclude yaml.Node `yaml:"exclude,omitempty"`
}

// LoadYAML loads a rule set from a YAML file
func LoadYAML(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	rs, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// ParseYAML parses YAML rules. Include rules come before exclude rules.
func ParseYAML(data []byte) (*RuleSet, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	var rs *RuleSet
	switch rf.Default {
	case "", "exclude":
		rs = NewRuleSet(false)
	case "include":
		rs = NewRuleSet(true)
	default:
		return nil, fmt.Errorf("invalid default %q (want include or exclude)", rf.Default)
	}

	if err := addYAMLRules(rs, &rf.Include, true); err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	if err := addYAMLRules(rs, &rf.Exclude, false); err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}
	return rs, nil
}

func addYAMLRules(rs *RuleSet, node *yaml.Node, include bool) error {
	if node.Kind == 0 || node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a map of key to values", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Value == "" {
			return fmt.Errorf("line %d: empty key", k.Line)
		}

		switch v.Kind {
		case yaml.ScalarNode:
			if v.Tag == "!!null" || v.Value == "*" {
				rs.AddRule(include, k.Value, "")
			} else if v.Value == "" {
				return fmt.Errorf("line %d: empty value for %q", v.Line, k.Value)
			} else {
				rs.AddRule(include, k.Value, v.Value)
			}
		case yaml.SequenceNode:
			if len(v.Content) == 0 {
				rs.AddRule(include, k.Value, "")
				continue
			}
			for _, item := range v.Content {
				if item.Kind != yaml.ScalarNode || item.Value == "" {
					return fmt.Errorf("line %d: invalid value for %q", item.Line, k.Value)
				}
				value := item.Value
				if value == "*" {
					value = ""
				}
				rs.AddRule(include, k.Value, value)
			}
		default:
			return fmt.Errorf("line %d: invalid values for %q", v.Line, k.Value)
		}
	}
	return nil
}
