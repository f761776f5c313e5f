package wkb

import (
	"bytes"
	"testing"

	"github.com/paulmach/orb"
	orbwkb "github.com/paulmach/orb/encoding/wkb"
)

func TestEncodeMatchesOrb(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{7.5, 47.5},
		orb.LineString{{1, 2}, {3, 4}, {5, 6}},
		orb.Polygon{
			{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
			{{2, 2}, {4, 2}, {4, 4}, {2, 2}},
		},
		orb.MultiLineString{{{0, 0}, {1, 1}}, {{2, 2}, {3, 3}}},
		orb.MultiPolygon{
			{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
			{{{5, 5}, {6, 5}, {6, 6}, {5, 5}}},
		},
	}

	e := NewEncoder(64)
	for _, g := range geoms {
		got, err := e.Encode(g)
		if err != nil {
			t.Fatalf("Encode(%T) error: %v", g, err)
		}
		want, err := orbwkb.Marshal(g)
		if err != nil {
			t.Fatalf("orb Marshal(%T) error: %v", g, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Encode(%T) = %x, want %x", g, got, want)
		}
	}
}

func TestEncodeEWKB(t *testing.T) {
	e := NewEncoderWithSRID(32, 3857)
	got, err := e.Encode(orb.Point{1, 2})
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	if len(got) != 25 {
		t.Fatalf("len = %d, want 25", len(got))
	}
	// type = 1 | SRID flag, little endian
	if !bytes.Equal(got[:5], []byte{0x01, 0x01, 0x00, 0x00, 0x20}) {
		t.Errorf("header = %x, want 0101000020", got[:5])
	}
	// SRID 3857 = 0x0F11
	if !bytes.Equal(got[5:9], []byte{0x11, 0x0f, 0x00, 0x00}) {
		t.Errorf("srid = %x, want 110f0000", got[5:9])
	}
	if e.SRID() != 3857 {
		t.Errorf("SRID() = %d, want 3857", e.SRID())
	}
}

func TestEncodeEWKBNestedHasNoSRID(t *testing.T) {
	e := NewEncoderWithSRID(64, 4326)
	got, err := e.Encode(orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}})
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	// header(9) + count(4), then the nested polygon header
	nested := got[13:18]
	if !bytes.Equal(nested, []byte{0x01, 0x03, 0x00, 0x00, 0x00}) {
		t.Errorf("nested header = %x, want 0103000000", nested)
	}
}

func TestEncodeUnsupported(t *testing.T) {
	e := NewEncoder(16)
	if _, err := e.Encode(orb.Collection{orb.Point{1, 2}}); err == nil {
		t.Errorf("Encode(Collection) succeeded, want error")
	}
}
