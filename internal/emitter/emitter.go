// Package emitter writes accepted ways and areas as CSV id lists.
//
// Each record is "id,value,node_id,node_id,..." where value is the value of
// the classifying tag. Files have no header.
package emitter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osm-waterways/internal/element"
	"github.com/wegman-software/osm-waterways/internal/tagfilter"
)

// Sink selects an output stream
type Sink int

const (
	WaySink Sink = iota
	AreaSink
)

func (s Sink) String() string {
	if s == WaySink {
		return "ways"
	}
	return "areas"
}

// sinkByKey routes classifying keys to outputs
var sinkByKey = map[string]Sink{
	"waterway": WaySink,
	"natural":  AreaSink,
	"landuse":  AreaSink,
}

// Stats holds record counts per sink
type Stats struct {
	WayRecords  int64
	AreaRecords int64
}

// Emitter implements pipeline.Handler for CSV output
type Emitter struct {
	filter *tagfilter.RuleSet
	sinks  [2]*bufio.Writer
	files  []io.Closer
	buf    []byte
	stats  Stats
}

// New creates an emitter writing to ways and areas
func New(filter *tagfilter.RuleSet, ways, areas io.Writer) *Emitter {
	return &Emitter{
		filter: filter,
		sinks:  [2]*bufio.Writer{bufio.NewWriterSize(ways, 256*1024), bufio.NewWriterSize(areas, 256*1024)},
		buf:    make([]byte, 0, 4096),
	}
}

// Open creates (truncating) the two output files
func Open(filter *tagfilter.RuleSet, waysPath, areasPath string) (*Emitter, error) {
	wf, err := os.Create(waysPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create ways output: %w", err)
	}
	af, err := os.Create(areasPath)
	if err != nil {
		wf.Close()
		return nil, fmt.Errorf("failed to create areas output: %w", err)
	}

	e := New(filter, wf, af)
	e.files = []io.Closer{wf, af}
	return e, nil
}

// classify returns the sink and value of the first of keys present in tags
func classify(tags osm.Tags, keys []string) (Sink, string, bool) {
	key := tagfilter.ClassifyKey(tags, keys)
	if key == "" {
		return 0, "", false
	}
	return sinkByKey[key], tags.Find(key), true
}

// Way writes an accepted way
func (e *Emitter) Way(w *element.Way) error {
	if !e.filter.Matches(w.Tags) {
		return nil
	}
	sink, value, ok := classify(w.Tags, tagfilter.WayKeys)
	if !ok {
		return nil
	}

	e.buf = e.record(e.buf[:0], w.ID, value)
	for _, n := range w.Nodes {
		e.buf = append(e.buf, ',')
		e.buf = strconv.AppendInt(e.buf, n.ID, 10)
	}
	return e.write(sink, w.ID)
}

// Area writes an accepted area with the node ids of its outer rings
func (e *Emitter) Area(a *element.Area) error {
	if !e.filter.Matches(a.Tags) {
		return nil
	}
	sink, value, ok := classify(a.Tags, tagfilter.AreaKeys)
	if !ok {
		return nil
	}

	e.buf = e.record(e.buf[:0], a.OrigID, value)
	for _, ring := range a.Outer {
		for _, n := range ring {
			e.buf = append(e.buf, ',')
			e.buf = strconv.AppendInt(e.buf, n.ID, 10)
		}
	}
	return e.write(sink, a.OrigID)
}

func (e *Emitter) record(buf []byte, id int64, value string) []byte {
	buf = strconv.AppendInt(buf, id, 10)
	buf = append(buf, ',')
	return append(buf, value...)
}

func (e *Emitter) write(sink Sink, id int64) error {
	e.buf = append(e.buf, '\n')
	if _, err := e.sinks[sink].Write(e.buf); err != nil {
		return fmt.Errorf("failed to write %s record for %d: %w", sink, id, err)
	}
	if sink == WaySink {
		e.stats.WayRecords++
	} else {
		e.stats.AreaRecords++
	}
	return nil
}

// Stats returns record counts
func (e *Emitter) Stats() Stats {
	return e.stats
}

// Close flushes both sinks and closes files opened by Open. It returns the
// first error.
func (e *Emitter) Close() error {
	var firstErr error
	for _, s := range e.sinks {
		if err := s.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to flush output: %w", err)
		}
	}
	for _, f := range e.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close output: %w", err)
		}
	}
	e.files = nil
	return firstErr
}
