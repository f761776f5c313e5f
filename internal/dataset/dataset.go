// Package dataset writes layered spatial datasets in the spirit of OGR: a
// dataset holds named layers, each with one geometry type and a fixed list
// of attribute fields.
package dataset

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/paulmach/orb"

	"github.com/wegman-software/osm-waterways/internal/proj"
)

// GeometryType is the geometry type of a layer
type GeometryType int

const (
	Point GeometryType = iota + 1
	LineString
	Polygon
	MultiPolygon
)

// String returns the OGC name of the type
func (g GeometryType) String() string {
	switch g {
	case Point:
		return "POINT"
	case LineString:
		return "LINESTRING"
	case Polygon:
		return "POLYGON"
	case MultiPolygon:
		return "MULTIPOLYGON"
	}
	return "GEOMETRY"
}

// geoJSONName returns the GeoJSON/GeoParquet spelling of the type
func (g GeometryType) geoJSONName() string {
	switch g {
	case Point:
		return "Point"
	case LineString:
		return "LineString"
	case Polygon:
		return "Polygon"
	case MultiPolygon:
		return "MultiPolygon"
	}
	return "Geometry"
}

// wkbCode returns the OGC WKB type code
func (g GeometryType) wkbCode() int {
	switch g {
	case Point:
		return 1
	case LineString:
		return 2
	case Polygon:
		return 3
	case MultiPolygon:
		return 6
	}
	return 0
}

func (g GeometryType) accepts(geom orb.Geometry) bool {
	switch geom.(type) {
	case orb.Point:
		return g == Point
	case orb.LineString:
		return g == LineString
	case orb.Polygon:
		return g == Polygon
	case orb.MultiPolygon:
		return g == MultiPolygon
	}
	return false
}

// FieldType is the type of an attribute field
type FieldType int

const (
	Integer FieldType = iota + 1
	Real
	String
)

func (t FieldType) String() string {
	switch t {
	case Integer:
		return "Integer"
	case Real:
		return "Real"
	case String:
		return "String"
	}
	return "Unknown"
}

// Field is an attribute definition. Width limits String values (in
// characters) and is advisory for numeric types.
type Field struct {
	Name  string
	Type  FieldType
	Width int
}

// Feature is one row of a layer. Values are in field order; a nil value
// is written as NULL.
type Feature struct {
	Geometry orb.Geometry
	Values   []any
}

// Layer receives features
type Layer interface {
	Name() string
	Add(f Feature) error
	// Count returns the number of features added so far
	Count() int64
}

// Dataset is an output with named layers
type Dataset interface {
	CreateLayer(name string, geomType GeometryType, fields []Field) (Layer, error)
	// Close finishes all layers. It must be called exactly once.
	Close() error
}

// Options selects and configures a driver
type Options struct {
	// Format is the driver name, matched case-insensitively
	Format string
	// Path is the file or directory to create, or "PG:<conninfo>" for PostgreSQL
	Path string
	// SRID of the geometries written
	SRID int
}

// DefaultFormat is the driver used when none is configured
const DefaultFormat = "SQLite"

type driver struct {
	name string
	open func(ctx context.Context, opts Options) (Dataset, error)
}

var drivers = []driver{
	{name: "SQLite", open: openSQLite},
	{name: "GeoJSON", open: openGeoJSON},
	{name: "Parquet", open: openParquet},
	{name: "PostgreSQL", open: openPostgres},
}

// Formats returns the available driver names
func Formats() []string {
	names := make([]string, len(drivers))
	for i, d := range drivers {
		names[i] = d.name
	}
	sort.Strings(names)
	return names
}

func lookup(format string) (driver, bool) {
	if format == "" {
		format = DefaultFormat
	}
	for _, d := range drivers {
		if strings.EqualFold(d.name, format) {
			return d, true
		}
	}
	// OGR short names
	switch strings.ToUpper(format) {
	case "PG", "POSTGIS":
		return lookup("PostgreSQL")
	case "SPATIALITE":
		return lookup("SQLite")
	}
	return driver{}, false
}

// CheckFormat returns an error for unknown driver names
func CheckFormat(format string) error {
	if _, ok := lookup(format); !ok {
		return fmt.Errorf("unknown output format %q (available: %s)", format, strings.Join(Formats(), ", "))
	}
	return nil
}

// Open creates a dataset
func Open(ctx context.Context, opts Options) (Dataset, error) {
	d, ok := lookup(opts.Format)
	if !ok {
		return nil, CheckFormat(opts.Format)
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("%s: output path is required", d.name)
	}
	if opts.SRID == 0 {
		opts.SRID = proj.SRID4326
	}
	ds, err := d.open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s dataset %s: %w", d.name, opts.Path, err)
	}
	return ds, nil
}

// schema is the validated definition shared by all drivers
type schema struct {
	name     string
	geomType GeometryType
	fields   []Field
}

func newSchema(name string, geomType GeometryType, fields []Field) (*schema, error) {
	if name == "" {
		return nil, fmt.Errorf("layer name is required")
	}
	if geomType.wkbCode() == 0 {
		return nil, fmt.Errorf("layer %s: unsupported geometry type %d", name, geomType)
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		key := strings.ToLower(f.Name)
		if f.Name == "" || seen[key] {
			return nil, fmt.Errorf("layer %s: invalid or duplicate field name %q", name, f.Name)
		}
		if f.Type < Integer || f.Type > String {
			return nil, fmt.Errorf("layer %s: field %s has unknown type", name, f.Name)
		}
		seen[key] = true
	}
	return &schema{name: name, geomType: geomType, fields: fields}, nil
}

// normalize checks a feature against the schema and converts its values to
// int64, float64 or string. Strings longer than the field width are cut.
func (s *schema) normalize(f Feature) ([]any, error) {
	if f.Geometry == nil || !s.geomType.accepts(f.Geometry) {
		return nil, fmt.Errorf("layer %s: geometry %T does not match layer type %s", s.name, f.Geometry, s.geomType)
	}
	if len(f.Values) != len(s.fields) {
		return nil, fmt.Errorf("layer %s: got %d values for %d fields", s.name, len(f.Values), len(s.fields))
	}

	out := make([]any, len(f.Values))
	for i, v := range f.Values {
		if v == nil {
			continue
		}
		field := s.fields[i]
		cv, err := convert(field, v)
		if err != nil {
			return nil, fmt.Errorf("layer %s: field %s: %w", s.name, field.Name, err)
		}
		out[i] = cv
	}
	return out, nil
}

func convert(field Field, v any) (any, error) {
	switch field.Type {
	case Integer:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		}
	case Real:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case String:
		if s, ok := v.(string); ok {
			return truncate(s, field.Width), nil
		}
	}
	return nil, fmt.Errorf("cannot store %T as %s", v, field.Type)
}

// truncate cuts s to at most width characters, 0 means unlimited
func truncate(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	n := 0
	for i := range s {
		if n == width {
			return s[:i]
		}
		n++
	}
	return s
}
