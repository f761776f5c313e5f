package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osm-waterways/internal/element"
	"github.com/wegman-software/osm-waterways/internal/nodeindex"
	"github.com/wegman-software/osm-waterways/internal/osmread"
	"github.com/wegman-software/osm-waterways/internal/tagfilter"
)

const lakeXML = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <node id="1" lat="50.0" lon="7.0"/>
  <node id="2" lat="50.0" lon="7.1"/>
  <node id="3" lat="50.1" lon="7.1"/>
  <node id="4" lat="50.1" lon="7.0"/>
  <node id="5" lat="50.02" lon="7.02"/>
  <node id="6" lat="50.02" lon="7.04"/>
  <node id="7" lat="50.04" lon="7.04"/>
  <node id="8" lat="50.04" lon="7.02"/>
  <way id="10">
    <nd ref="1"/><nd ref="2"/><nd ref="3"/>
    <tag k="waterway" v="river"/>
  </way>
  <way id="11">
    <nd ref="3"/><nd ref="4"/><nd ref="1"/>
  </way>
  <way id="12">
    <nd ref="5"/><nd ref="6"/><nd ref="7"/><nd ref="8"/><nd ref="5"/>
  </way>
  <way id="13">
    <nd ref="1"/><nd ref="2"/><nd ref="99"/><nd ref="1"/>
    <tag k="natural" v="water"/>
  </way>
  <relation id="20">
    <member type="way" ref="10" role="outer"/>
    <member type="way" ref="11" role="outer"/>
    <member type="way" ref="12" role="inner"/>
    <tag k="type" v="multipolygon"/>
    <tag k="natural" v="water"/>
  </relation>
  <relation id="21">
    <member type="way" ref="500" role="outer"/>
    <tag k="type" v="multipolygon"/>
    <tag k="landuse" v="reservoir"/>
  </relation>
</osm>
`

type recorder struct {
	ways   []*element.Way
	areas  []*element.Area
	events []string
	wayErr error
}

func (r *recorder) Way(w *element.Way) error {
	r.ways = append(r.ways, w.Clone())
	r.events = append(r.events, fmt.Sprintf("way %d", w.ID))
	return r.wayErr
}

func (r *recorder) Area(a *element.Area) error {
	r.areas = append(r.areas, a)
	r.events = append(r.events, fmt.Sprintf("area %s %d", a.OrigType(), a.OrigID))
	return nil
}

func openInput(t *testing.T, content string) *osmread.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.osm")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	f, err := osmread.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestDriverTwoPass(t *testing.T) {
	input := openInput(t, lakeXML)
	var rec recorder

	d, err := NewDriver(input, nodeindex.NewMemStore(), tagfilter.DefaultWaterRules(), &rec, Options{WithAreas: true})
	require.NoError(t, err)

	stats, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.ways, 4)
	assert.Equal(t, []int64{10, 11, 12, 13}, []int64{rec.ways[0].ID, rec.ways[1].ID, rec.ways[2].ID, rec.ways[3].ID})
	assert.True(t, rec.ways[0].Nodes[0].Valid)
	assert.InDelta(t, 50.0, rec.ways[0].Nodes[0].Lat, 1e-9)
	assert.False(t, rec.ways[3].Nodes[2].Valid)

	// Way 13 misses a node location, so only the relation becomes an area
	require.Len(t, rec.areas, 1)
	a := rec.areas[0]
	assert.Equal(t, int64(20), a.OrigID)
	assert.Equal(t, int64(41), a.ID)
	require.Len(t, a.Outer, 1)
	assert.Len(t, a.Outer[0], 5)
	require.Len(t, a.Inner, 1)

	assert.Equal(t, int64(2), stats.Relations)
	assert.Equal(t, int64(8), stats.Nodes)
	assert.Equal(t, int64(4), stats.Ways)
	assert.Equal(t, int64(1), stats.MissingLocations)
	assert.Equal(t, []int64{21}, stats.Incomplete)
	assert.Equal(t, int64(1), stats.Areas.AreasFromRelations)
	assert.Equal(t, int64(1), stats.Areas.Failed)
}

func TestDriverAreaFollowsLastMemberWay(t *testing.T) {
	input := openInput(t, lakeXML)
	var rec recorder

	d, err := NewDriver(input, nodeindex.NewMemStore(), tagfilter.DefaultWaterRules(), &rec, Options{WithAreas: true})
	require.NoError(t, err)
	_, err = d.Run(context.Background())
	require.NoError(t, err)

	// Relation 20 completes with way 12, before way 13 is read
	assert.Equal(t, []string{
		"way 10",
		"way 11",
		"way 12",
		"area relation 20",
		"way 13",
	}, rec.events)
}

func TestDriverSinglePass(t *testing.T) {
	input := openInput(t, lakeXML)
	var rec recorder

	d, err := NewDriver(input, nodeindex.NewMemStore(), nil, &rec, Options{})
	require.NoError(t, err)

	stats, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, rec.ways, 4)
	assert.Empty(t, rec.areas)
	assert.Zero(t, stats.Relations)
	assert.Nil(t, stats.Incomplete)
}

func TestDriverHandlerError(t *testing.T) {
	input := openInput(t, lakeXML)
	boom := errors.New("write failed")
	rec := recorder{wayErr: boom}

	d, err := NewDriver(input, nodeindex.NewMemStore(), nil, &rec, Options{})
	require.NoError(t, err)

	_, err = d.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.ways, 1)
}

func TestDriverStdinTwoPass(t *testing.T) {
	input, err := osmread.Open(osmread.Stdin)
	require.NoError(t, err)

	_, err = NewDriver(input, nodeindex.NewMemStore(), tagfilter.DefaultWaterRules(), &recorder{}, Options{WithAreas: true})
	assert.ErrorIs(t, err, osmread.ErrNotSeekable)
}
