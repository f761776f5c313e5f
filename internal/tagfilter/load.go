package tagfilter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LoadFile loads a rule set from path. The format is chosen by extension:
// .yaml/.yml and .lua select the structured loaders, anything else is read
// as a plain text rules file with one expression per line.
func LoadFile(path string) (*RuleSet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	case ".lua":
		return LoadLua(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	rs, err := ParseText(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// ParseText reads text rules: '#' starts a comment, blank lines are skipped,
// and the first malformed line aborts with its line number.
func ParseText(r io.Reader) (*RuleSet, error) {
	rs := NewRuleSet(false)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		rule, err := ParseExpression(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		rs.Add(rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return rs, nil
}
