// Package wkb encodes orb geometries as little-endian WKB or PostGIS EWKB.
package wkb

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// WKB type constants (ISO SQL/MM specification)
const (
	wkbPoint           = 1
	wkbLineString      = 2
	wkbPolygon         = 3
	wkbMultiLineString = 5
	wkbMultiPolygon    = 6

	// SRID flag for EWKB (PostGIS extended WKB)
	wkbSRIDFlag = 0x20000000
)

// Encoder encodes geometries into a reused buffer. The slice returned by
// Encode is only valid until the next call.
type Encoder struct {
	buf  []byte
	srid uint32
	ewkb bool
}

// NewEncoder creates a plain WKB encoder (OGC, no SRID)
func NewEncoder(initialSize int) *Encoder {
	return &Encoder{buf: make([]byte, 0, initialSize)}
}

// NewEncoderWithSRID creates an EWKB encoder that embeds srid in the
// top-level geometry
func NewEncoderWithSRID(initialSize int, srid int) *Encoder {
	return &Encoder{
		buf:  make([]byte, 0, initialSize),
		srid: uint32(srid),
		ewkb: true,
	}
}

// SRID returns the embedded SRID, 0 for plain WKB
func (e *Encoder) SRID() int {
	return int(e.srid)
}

// Encode encodes g. Supported types are Point, LineString, Polygon,
// MultiLineString and MultiPolygon.
func (e *Encoder) Encode(g orb.Geometry) ([]byte, error) {
	e.buf = e.buf[:0]
	switch g := g.(type) {
	case orb.Point:
		e.header(wkbPoint, true)
		e.appendPoint(g)
	case orb.LineString:
		e.header(wkbLineString, true)
		e.appendPoints(g)
	case orb.Polygon:
		e.header(wkbPolygon, true)
		e.appendPolygon(g)
	case orb.MultiLineString:
		e.header(wkbMultiLineString, true)
		e.appendUint32(uint32(len(g)))
		for _, ls := range g {
			// Embedded geometries don't carry an SRID
			e.header(wkbLineString, false)
			e.appendPoints(ls)
		}
	case orb.MultiPolygon:
		e.header(wkbMultiPolygon, true)
		e.appendUint32(uint32(len(g)))
		for _, poly := range g {
			e.header(wkbPolygon, false)
			e.appendPolygon(poly)
		}
	default:
		return nil, fmt.Errorf("unsupported geometry type %T", g)
	}
	return e.buf, nil
}

// header writes byte order and type, plus the SRID for top-level EWKB
func (e *Encoder) header(typ uint32, top bool) {
	// Byte order (little-endian)
	e.buf = append(e.buf, 0x01)
	if top && e.ewkb {
		e.appendUint32(typ | wkbSRIDFlag)
		e.appendUint32(e.srid)
		return
	}
	e.appendUint32(typ)
}

func (e *Encoder) appendPolygon(p orb.Polygon) {
	e.appendUint32(uint32(len(p)))
	for _, ring := range p {
		e.appendPoints(ring)
	}
}

func (e *Encoder) appendPoints(pts []orb.Point) {
	e.appendUint32(uint32(len(pts)))
	for _, p := range pts {
		e.appendPoint(p)
	}
}

func (e *Encoder) appendPoint(p orb.Point) {
	e.appendFloat64(p[0])
	e.appendFloat64(p[1])
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
