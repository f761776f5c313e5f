// Package rsystem loads the way id to river system name join table.
package rsystem

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unique"
)

// Header is the required first line of a river systems file
const Header = "id,rsystem"

var (
	// ErrHeader is returned when the first line is not Header
	ErrHeader = errors.New("river systems file must start with header " + Header)
	// ErrEmpty is returned when the file has no header line at all
	ErrEmpty = errors.New("can't read river systems file")
)

// Map holds way id to river system name. Names are interned so every id of
// the same system shares a single string.
type Map struct {
	systems map[int64]unique.Handle[string]
	names   map[unique.Handle[string]]struct{}
}

// New returns an empty map
func New() *Map {
	return &Map{
		systems: make(map[int64]unique.Handle[string]),
		names:   make(map[unique.Handle[string]]struct{}),
	}
}

// Load reads a river systems CSV file
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open river systems file: %w", err)
	}
	defer f.Close()

	m, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Read parses river systems CSV from r
func Read(r io.Reader) (*Map, error) {
	br := bufio.NewReader(r)

	header, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrEmpty, err)
	}
	if header == "" {
		return nil, ErrEmpty
	}
	if strings.TrimRight(header, "\r\n") != Header {
		return nil, ErrHeader
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = 2
	cr.ReuseRecord = true

	m := New()
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, fmt.Errorf("line %d: %w", pe.StartLine+1, pe.Err)
			}
			return nil, fmt.Errorf("failed to read river systems: %w", err)
		}
		line, _ := cr.FieldPos(0)
		id, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid way id %q", line+1, rec[0])
		}
		m.Set(id, rec[1])
	}
	return m, nil
}

// Set assigns a river system to a way id
func (m *Map) Set(id int64, name string) {
	h := unique.Make(name)
	m.systems[id] = h
	m.names[h] = struct{}{}
}

// Lookup returns the river system of a way, or "" if the way has none
func (m *Map) Lookup(id int64) string {
	if m == nil {
		return ""
	}
	h, ok := m.systems[id]
	if !ok {
		return ""
	}
	return h.Value()
}

// Len returns the number of way ids
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.systems)
}

// Systems returns the number of distinct river system names
func (m *Map) Systems() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}
