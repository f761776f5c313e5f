package config

import (
	"fmt"
	"time"

	"github.com/wegman-software/osm-waterways/internal/dataset"
	"github.com/wegman-software/osm-waterways/internal/nodeindex"
	"github.com/wegman-software/osm-waterways/internal/osmread"
	"github.com/wegman-software/osm-waterways/internal/proj"
	"github.com/wegman-software/osm-waterways/internal/tagfilter"
)

// Mode selects the command a Config is validated for
type Mode int

const (
	// ModeIDs writes way and area id lists as CSV
	ModeIDs Mode = iota
	// ModeRiverMap writes a spatial dataset
	ModeRiverMap
)

// Config holds the configuration of one run
type Config struct {
	// Input settings
	Input         string // OSM file, "-" for standard input
	LocationStore string // TYPE[,PATH]

	// Rules
	RulesFile string   // text, YAML or Lua rules file
	RuleExprs []string // literal rule expressions, appended after the file

	// CSV output (ids)
	WaysFile  string
	AreasFile string

	// Dataset output (rivermap)
	OutputFile       string
	OutputFormat     string
	RiverSystemsFile string
	Projection       string // 4326 or 3857
	WithAreas        bool   // also write the water polygon layer

	// Logging and metrics
	Verbose          bool
	LogFile          string        // Path to log file (empty = no file logging)
	MetricsInterval  time.Duration // 0 disables system metrics logging
	ProgressInterval time.Duration
}

// DefaultConfig returns a configuration with the defaults of both commands
func DefaultConfig() *Config {
	return &Config{
		Input:            osmread.Stdin,
		LocationStore:    nodeindex.DefaultType,
		OutputFile:       "ogr_out",
		OutputFormat:     dataset.DefaultFormat,
		Projection:       "4326",
		MetricsInterval:  0,
		ProgressInterval: 5 * time.Second,
	}
}

// SRID returns the parsed output projection
func (c *Config) SRID() (int, error) {
	return proj.ParseSRID(c.Projection)
}

// Rules builds the rule set: rules from RulesFile followed by RuleExprs,
// or the built-in water rules when neither is given
func (c *Config) Rules() (*tagfilter.RuleSet, error) {
	if c.RulesFile == "" && len(c.RuleExprs) == 0 {
		return tagfilter.DefaultWaterRules(), nil
	}

	literals, err := tagfilter.ParseExpressions(c.RuleExprs)
	if err != nil {
		return nil, err
	}
	if c.RulesFile == "" {
		return literals, nil
	}

	rs, err := tagfilter.LoadFile(c.RulesFile)
	if err != nil {
		return nil, err
	}
	for _, r := range literals.Rules() {
		rs.Add(r)
	}
	return rs, nil
}

// Validate checks that the configuration is usable for mode. It does not
// touch the file system.
func (c *Config) Validate(mode Mode) error {
	if c.Input == "" {
		return fmt.Errorf("input file is required")
	}
	if _, _, err := nodeindex.ParseSpec(c.LocationStore); err != nil {
		return err
	}
	if c.MetricsInterval < 0 || c.ProgressInterval < 0 {
		return fmt.Errorf("intervals must not be negative")
	}

	switch mode {
	case ModeIDs:
		if c.WaysFile == "" || c.AreasFile == "" {
			return fmt.Errorf("ways and areas output files are required")
		}
		if c.WaysFile == c.AreasFile {
			return fmt.Errorf("ways and areas output must be different files")
		}
		if c.Input == osmread.Stdin {
			return fmt.Errorf("ids reads the input twice and cannot read standard input")
		}
	case ModeRiverMap:
		if c.OutputFile == "" {
			return fmt.Errorf("output file is required")
		}
		if err := dataset.CheckFormat(c.OutputFormat); err != nil {
			return err
		}
		if _, err := c.SRID(); err != nil {
			return err
		}
		if c.WithAreas && c.Input == osmread.Stdin {
			return fmt.Errorf("--areas reads the input twice and cannot read standard input")
		}
	default:
		return fmt.Errorf("unknown mode %d", mode)
	}
	return nil
}
