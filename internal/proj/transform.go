// Package proj projects WGS84 coordinates into the output SRID.
package proj

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// SRID constants for supported projections
const (
	SRID4326 = 4326 // WGS84 (lat/lon)
	SRID3857 = 3857 // Web Mercator
)

// Transformer projects WGS84 longitude/latitude into TargetSRID
type Transformer struct {
	TargetSRID int
}

// NewTransformer creates a transformer from WGS84 to target
func NewTransformer(target int) (*Transformer, error) {
	if target != SRID4326 && target != SRID3857 {
		return nil, fmt.Errorf("unsupported target SRID: %d (only 4326 and 3857 supported)", target)
	}
	return &Transformer{TargetSRID: target}, nil
}

// Point projects a lon/lat pair
func (t *Transformer) Point(lon, lat float64) orb.Point {
	if t == nil || t.TargetSRID == SRID4326 {
		return orb.Point{lon, lat}
	}
	x, y := lonLatToWebMercator(lon, lat)
	return orb.Point{x, y}
}

// SRID returns the output SRID
func (t *Transformer) SRID() int {
	if t == nil {
		return SRID4326
	}
	return t.TargetSRID
}

// NeedsTransform returns true if coordinates change
func (t *Transformer) NeedsTransform() bool {
	return t != nil && t.TargetSRID != SRID4326
}

// Web Mercator constants
const (
	// Semi-major axis of WGS84 ellipsoid in meters
	earthRadius = 6378137.0
	// Maximum extent of Web Mercator
	maxExtent = 20037508.342789244
	// Latitude limit of the square Web Mercator world
	maxLat = 85.0511287798
)

// lonLatToWebMercator converts WGS84 (lon, lat) to Web Mercator (x, y)
func lonLatToWebMercator(lon, lat float64) (x, y float64) {
	// Clamp latitude to avoid infinity at poles
	lat = math.Max(-maxLat, math.Min(maxLat, lat))

	x = lon * maxExtent / 180.0
	// y = R * ln(tan(π/4 + φ/2))
	latRad := lat * math.Pi / 180.0
	y = math.Log(math.Tan(math.Pi/4.0+latRad/2.0)) * earthRadius
	return x, y
}

// ParseSRID parses a projection string to SRID
// Accepts: "4326", "3857", "EPSG:4326", "EPSG:3857"
func ParseSRID(s string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "4326", "EPSG:4326", "WGS84":
		return SRID4326, nil
	case "3857", "EPSG:3857", "900913":
		return SRID3857, nil
	default:
		return 0, fmt.Errorf("unsupported projection: %s (supported: 4326, 3857)", s)
	}
}
