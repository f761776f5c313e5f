// Package rivermap writes waterways, and optionally water areas, to a
// layered spatial dataset.
package rivermap

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wegman-software/osm-waterways/internal/dataset"
	"github.com/wegman-software/osm-waterways/internal/element"
	"github.com/wegman-software/osm-waterways/internal/geom"
	"github.com/wegman-software/osm-waterways/internal/logger"
	"github.com/wegman-software/osm-waterways/internal/proj"
	"github.com/wegman-software/osm-waterways/internal/rsystem"
	"github.com/wegman-software/osm-waterways/internal/tagfilter"
)

// Layer names
const (
	WaterwayLayer = "waterway"
	WaterLayer    = "water"
)

var waterwayFields = []dataset.Field{
	{Name: "id", Type: dataset.Real, Width: 10},
	{Name: "name", Type: dataset.String, Width: 30},
	{Name: "type", Type: dataset.String, Width: 30},
	{Name: "rsystem", Type: dataset.String, Width: 30},
}

var waterFields = []dataset.Field{
	{Name: "id", Type: dataset.Real, Width: 10},
	{Name: "type", Type: dataset.String, Width: 32},
	{Name: "name", Type: dataset.String, Width: 32},
}

// Stats counts written and skipped features
type Stats struct {
	Waterways       int64
	Water           int64
	IllegalGeometry int64
}

// Handler implements pipeline.Handler for the river map
type Handler struct {
	filter    *tagfilter.RuleSet
	systems   *rsystem.Map
	transform *proj.Transformer
	waterways dataset.Layer
	water     dataset.Layer
	stats     Stats
}

// Options configures a Handler
type Options struct {
	// Systems annotates waterways with a river system; nil leaves it empty
	Systems *rsystem.Map
	// Transform projects coordinates; nil keeps WGS84
	Transform *proj.Transformer
	// WithAreas adds the water polygon layer
	WithAreas bool
}

// New creates the layers in ds
func New(ds dataset.Dataset, filter *tagfilter.RuleSet, opts Options) (*Handler, error) {
	waterways, err := ds.CreateLayer(WaterwayLayer, dataset.LineString, waterwayFields)
	if err != nil {
		return nil, err
	}
	h := &Handler{
		filter:    filter,
		systems:   opts.Systems,
		transform: opts.Transform,
		waterways: waterways,
	}
	if opts.WithAreas {
		if h.water, err = ds.CreateLayer(WaterLayer, dataset.MultiPolygon, waterFields); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// optional returns nil for an empty tag value so it is written as NULL
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Way writes ways carrying a waterway tag
func (h *Handler) Way(w *element.Way) error {
	waterway := w.Tags.Find("waterway")
	if waterway == "" || !h.filter.Matches(w.Tags) {
		return nil
	}

	line, err := geom.LineString(w, h.transform)
	if err != nil {
		if errors.Is(err, geom.ErrGeometry) {
			h.stats.IllegalGeometry++
			logger.Get().Warn(fmt.Sprintf("Ignoring illegal geometry for way %d", w.ID), zap.Error(err))
			return nil
		}
		return err
	}

	err = h.waterways.Add(dataset.Feature{
		Geometry: line,
		Values: []any{
			float64(w.ID),
			optional(w.Tags.Find("name")),
			waterway,
			h.systems.Lookup(w.ID),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write way %d: %w", w.ID, err)
	}
	h.stats.Waterways++
	return nil
}

// Area writes water areas when the water layer is enabled
func (h *Handler) Area(a *element.Area) error {
	if h.water == nil {
		return nil
	}
	key := tagfilter.ClassifyKey(a.Tags, tagfilter.AreaKeys)
	if key == "" {
		return nil
	}

	mp, err := geom.MultiPolygon(a, h.transform)
	if err != nil {
		if errors.Is(err, geom.ErrGeometry) {
			h.stats.IllegalGeometry++
			logger.Get().Warn(fmt.Sprintf("Ignoring illegal geometry for %s %d", a.OrigType(), a.OrigID), zap.Error(err))
			return nil
		}
		return err
	}

	err = h.water.Add(dataset.Feature{
		Geometry: mp,
		Values: []any{
			float64(a.OrigID),
			a.Tags.Find(key),
			optional(a.Tags.Find("name")),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write %s %d: %w", a.OrigType(), a.OrigID, err)
	}
	h.stats.Water++
	return nil
}

// Stats returns the feature counts
func (h *Handler) Stats() Stats {
	return h.stats
}
