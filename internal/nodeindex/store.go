// Package nodeindex stores node locations between the node and way stages of
// a pass. Stores are selected by name, optionally with a backing path.
package nodeindex

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Store maps node ids to locations
type Store interface {
	// Put stores a node location, replacing any previous one
	Put(id int64, lat, lon float64) error
	// Get returns the location of a node, ok is false when it is unknown
	Get(id int64) (lat, lon float64, ok bool)
	// Close releases the store and any temporary files it created
	Close() error
}

// DefaultType is the store used when none is configured
const DefaultType = "flex_mem"

type factory struct {
	description string
	open        func(path string) (Store, error)
}

var factories = map[string]factory{
	"flex_mem": {
		description: "in-memory hash map, grows with the number of nodes",
		open:        func(string) (Store, error) { return NewMemStore(), nil },
	},
	"dense_mmap_array": {
		description: "memory-mapped array indexed by node id, optional ,PATH (temporary file otherwise)",
		open:        func(path string) (Store, error) { return NewMmapStore(path) },
	},
	"leveldb": {
		description: "on-disk LevelDB, optional ,DIR (temporary directory otherwise)",
		open:        func(path string) (Store, error) { return NewLevelDBStore(path) },
	},
}

// Types returns the available store type names in sorted order
func Types() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns a one-line description of a store type
func Describe(name string) string {
	return factories[name].description
}

// ParseSpec splits "TYPE[,PATH]" and checks that TYPE is known
func ParseSpec(spec string) (typ, path string, err error) {
	typ, path, _ = strings.Cut(spec, ",")
	typ = strings.TrimSpace(typ)
	if typ == "" {
		typ = DefaultType
	}
	if _, ok := factories[typ]; !ok {
		return "", "", fmt.Errorf("unknown location store type %q (available: %s)", typ, strings.Join(Types(), ", "))
	}
	return typ, strings.TrimSpace(path), nil
}

// New opens a store from a "TYPE[,PATH]" spec
func New(spec string) (Store, error) {
	typ, path, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	s, err := factories[typ].open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s location store: %w", typ, err)
	}
	return s, nil
}

// Locations are kept as fixed-point int32 with 7 decimal places, the
// precision of OSM coordinates.
const coordScale = 1e7

func toFixed(v float64) int32 {
	return int32(math.Round(v * coordScale))
}

func fromFixed(v int32) float64 {
	return float64(v) / coordScale
}
