// Package geom builds projected orb geometries from resolved ways and areas.
package geom

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/wegman-software/osm-waterways/internal/element"
	"github.com/wegman-software/osm-waterways/internal/proj"
)

// ErrGeometry is returned when no valid geometry can be built
var ErrGeometry = errors.New("illegal geometry")

// LineString builds a line from the way nodes that have a location.
// Consecutive duplicate points are dropped.
func LineString(w *element.Way, t *proj.Transformer) (orb.LineString, error) {
	ls := make(orb.LineString, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		if !n.Valid {
			continue
		}
		p := t.Point(n.Lon, n.Lat)
		if len(ls) > 0 && ls[len(ls)-1] == p {
			continue
		}
		ls = append(ls, p)
	}
	if len(ls) < 2 {
		return nil, fmt.Errorf("%w: way %d has %d distinct located nodes", ErrGeometry, w.ID, len(ls))
	}
	return ls, nil
}

// Ring builds a closed ring. All nodes must have a location.
func Ring(r element.Ring, t *proj.Transformer) (orb.Ring, error) {
	ring := make(orb.Ring, 0, len(r))
	for _, n := range r {
		if !n.Valid {
			return nil, fmt.Errorf("%w: node %d has no location", ErrGeometry, n.ID)
		}
		p := t.Point(n.Lon, n.Lat)
		if len(ring) > 0 && ring[len(ring)-1] == p {
			continue
		}
		ring = append(ring, p)
	}
	if len(ring) < 4 || !ring.Closed() {
		return nil, fmt.Errorf("%w: ring with %d points", ErrGeometry, len(ring))
	}
	return ring, nil
}

// MultiPolygon builds one polygon per outer ring. Each inner ring goes into
// the first outer ring that contains it; inner rings outside every outer ring
// are dropped.
func MultiPolygon(a *element.Area, t *proj.Transformer) (orb.MultiPolygon, error) {
	if len(a.Outer) == 0 {
		return nil, fmt.Errorf("%w: area %d has no outer ring", ErrGeometry, a.ID)
	}

	mp := make(orb.MultiPolygon, 0, len(a.Outer))
	for _, r := range a.Outer {
		ring, err := Ring(r, t)
		if err != nil {
			return nil, err
		}
		mp = append(mp, orb.Polygon{ring})
	}

	for _, r := range a.Inner {
		inner, err := Ring(r, t)
		if err != nil {
			return nil, err
		}
		for i := range mp {
			if ringContainedBy(inner, mp[i][0]) {
				mp[i] = append(mp[i], inner)
				break
			}
		}
	}
	return mp, nil
}

// ringContainedBy performs a simple point-in-polygon test
// Uses ray casting algorithm with first point of inner ring
func ringContainedBy(inner, outer orb.Ring) bool {
	if len(inner) < 1 || len(outer) < 3 {
		return false
	}

	testX, testY := inner[0][0], inner[0][1]
	inside := false
	j := len(outer) - 1
	for i := range outer {
		xi, yi := outer[i][0], outer[i][1]
		xj, yj := outer[j][0], outer[j][1]

		if ((yi > testY) != (yj > testY)) &&
			(testX < (xj-xi)*(testY-yi)/(yj-yi)+xi) {
			inside = !inside
		}
		j = i
	}
	return inside
}
