package rivermap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osm-waterways/internal/dataset"
	"github.com/wegman-software/osm-waterways/internal/element"
	"github.com/wegman-software/osm-waterways/internal/rsystem"
	"github.com/wegman-software/osm-waterways/internal/tagfilter"
)

func node(id int64, lat, lon float64) element.NodeRef {
	return element.NodeRef{ID: id, Lat: lat, Lon: lon, Valid: true}
}

func readLayer(t *testing.T, dir, name string) *geojson.FeatureCollection {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name+".geojson"))
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	return fc
}

func TestHandlerWaterways(t *testing.T) {
	dir := t.TempDir()
	ds, err := dataset.Open(context.Background(), dataset.Options{Format: "GeoJSON", Path: dir})
	require.NoError(t, err)

	systems := rsystem.New()
	systems.Set(10, "Rhine")

	h, err := New(ds, tagfilter.DefaultWaterRules(), Options{Systems: systems})
	require.NoError(t, err)

	ways := []*element.Way{
		{ID: 10, Tags: osm.Tags{{Key: "waterway", Value: "river"}, {Key: "name", Value: "Rhein"}},
			Nodes: []element.NodeRef{node(1, 47.0, 8.0), node(2, 47.1, 8.1)}},
		{ID: 11, Tags: osm.Tags{{Key: "waterway", Value: "stream"}},
			Nodes: []element.NodeRef{node(3, 47.0, 8.0), node(4, 47.2, 8.2)}},
		// not a waterway
		{ID: 12, Tags: osm.Tags{{Key: "natural", Value: "water"}},
			Nodes: []element.NodeRef{node(1, 47.0, 8.0), node(2, 47.1, 8.1)}},
		// only one located node
		{ID: 13, Tags: osm.Tags{{Key: "waterway", Value: "ditch"}},
			Nodes: []element.NodeRef{node(1, 47.0, 8.0), {ID: 99}}},
	}
	for _, w := range ways {
		require.NoError(t, h.Way(w))
	}
	// The water layer is disabled
	require.NoError(t, h.Area(&element.Area{ID: 2, OrigID: 1, FromWay: true, Tags: osm.Tags{{Key: "natural", Value: "water"}}}))
	require.NoError(t, ds.Close())

	assert.Equal(t, Stats{Waterways: 2, IllegalGeometry: 1}, h.Stats())

	_, err = os.Stat(filepath.Join(dir, WaterLayer+".geojson"))
	assert.True(t, os.IsNotExist(err))

	fc := readLayer(t, dir, WaterwayLayer)
	require.Len(t, fc.Features, 2)

	f := fc.Features[0]
	assert.Equal(t, float64(10), f.Properties.MustFloat64("id"))
	assert.Equal(t, "Rhein", f.Properties.MustString("name"))
	assert.Equal(t, "river", f.Properties.MustString("type"))
	assert.Equal(t, "Rhine", f.Properties.MustString("rsystem"))

	f = fc.Features[1]
	assert.Nil(t, f.Properties["name"])
	assert.Equal(t, "", f.Properties.MustString("rsystem"))
}

func TestHandlerWater(t *testing.T) {
	dir := t.TempDir()
	ds, err := dataset.Open(context.Background(), dataset.Options{Format: "GeoJSON", Path: dir})
	require.NoError(t, err)

	h, err := New(ds, tagfilter.DefaultWaterRules(), Options{WithAreas: true})
	require.NoError(t, err)

	outer := element.Ring{node(1, 0, 0), node(2, 0, 1), node(3, 1, 1), node(4, 1, 0), node(1, 0, 0)}
	lake := &element.Area{
		ID:     41,
		OrigID: 20,
		Tags:   osm.Tags{{Key: "landuse", Value: "reservoir"}, {Key: "natural", Value: "water"}, {Key: "name", Value: "See"}},
		Outer:  []element.Ring{outer},
	}
	require.NoError(t, h.Area(lake))

	// No classifying key
	require.NoError(t, h.Area(&element.Area{ID: 43, OrigID: 21, Tags: osm.Tags{{Key: "water", Value: "lake"}}, Outer: []element.Ring{outer}}))

	broken := element.Ring{node(1, 0, 0), node(2, 0, 1), {ID: 3}, node(1, 0, 0)}
	require.NoError(t, h.Area(&element.Area{ID: 4, OrigID: 2, FromWay: true, Tags: osm.Tags{{Key: "natural", Value: "water"}}, Outer: []element.Ring{broken}}))
	require.NoError(t, ds.Close())

	assert.Equal(t, Stats{Water: 1, IllegalGeometry: 1}, h.Stats())

	fc := readLayer(t, dir, WaterLayer)
	require.Len(t, fc.Features, 1)
	f := fc.Features[0]
	assert.Equal(t, "MultiPolygon", f.Geometry.GeoJSONType())
	assert.Equal(t, float64(20), f.Properties.MustFloat64("id"))
	assert.Equal(t, "water", f.Properties.MustString("type"))
	assert.Equal(t, "See", f.Properties.MustString("name"))

	assert.Empty(t, readLayer(t, dir, WaterwayLayer).Features)
}
