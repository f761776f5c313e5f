package area

import (
	"errors"
	"testing"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osm-waterways/internal/element"
	"github.com/wegman-software/osm-waterways/internal/tagfilter"
)

func way(id int64, tags osm.Tags, nodeIDs ...int64) *element.Way {
	w := &element.Way{ID: id, Tags: tags}
	for _, n := range nodeIDs {
		w.Nodes = append(w.Nodes, element.NodeRef{ID: n, Lat: float64(n), Lon: float64(n) / 2, Valid: true})
	}
	return w
}

func relation(id int64, tags osm.Tags, members ...osm.Member) *osm.Relation {
	return &osm.Relation{ID: osm.RelationID(id), Tags: tags, Members: members}
}

func wayMember(ref int64, role string) osm.Member {
	return osm.Member{Type: osm.TypeWay, Ref: ref, Role: role}
}

var (
	water = osm.Tags{{Key: "natural", Value: "water"}}
	mpTag = osm.Tag{Key: "type", Value: "multipolygon"}
)

type collector struct {
	areas []*element.Area
}

func (c *collector) emit(a *element.Area) error {
	c.areas = append(c.areas, a)
	return nil
}

func TestAreaFromClosedWay(t *testing.T) {
	m := NewManager(tagfilter.DefaultWaterRules())
	var c collector

	require.NoError(t, m.Way(way(7, water, 1, 2, 3, 4, 1), c.emit))
	require.Len(t, c.areas, 1)

	a := c.areas[0]
	assert.Equal(t, int64(14), a.ID)
	assert.Equal(t, int64(7), a.OrigID)
	assert.True(t, a.FromWay)
	assert.Equal(t, "way", a.OrigType())
	require.Len(t, a.Outer, 1)
	assert.Len(t, a.Outer[0], 5)
	assert.Empty(t, a.Inner)
	assert.Equal(t, int64(1), m.Stats().AreasFromWays)
}

func TestClosedWaySkipped(t *testing.T) {
	tests := []struct {
		name string
		way  *element.Way
	}{
		{"open", way(1, water, 1, 2, 3, 4)},
		{"too short", way(2, water, 1, 2, 1)},
		{"area=no", way(3, osm.Tags{{Key: "natural", Value: "water"}, {Key: "area", Value: "no"}}, 1, 2, 3, 1)},
		{"no match", way(4, osm.Tags{{Key: "natural", Value: "wood"}}, 1, 2, 3, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tagfilter.DefaultWaterRules())
			var c collector
			require.NoError(t, m.Way(tt.way, c.emit))
			assert.Empty(t, c.areas)
		})
	}
}

func TestClosedWayMissingLocation(t *testing.T) {
	m := NewManager(tagfilter.DefaultWaterRules())
	var c collector

	w := way(9, water, 1, 2, 3, 4, 1)
	w.Nodes[2].Valid = false
	require.NoError(t, m.Way(w, c.emit))
	assert.Empty(t, c.areas)
	assert.Equal(t, int64(1), m.Stats().Failed)
}

func TestRelationFilter(t *testing.T) {
	m := NewManager(tagfilter.DefaultWaterRules())

	assert.True(t, m.Relation(relation(1, osm.Tags{mpTag, {Key: "natural", Value: "water"}}, wayMember(10, "outer"))))
	assert.True(t, m.Relation(relation(2, osm.Tags{{Key: "type", Value: "boundary"}, {Key: "waterway", Value: "riverbank"}}, wayMember(11, ""))))
	assert.False(t, m.Relation(relation(3, osm.Tags{{Key: "type", Value: "route"}, {Key: "waterway", Value: "river"}}, wayMember(12, ""))))
	assert.False(t, m.Relation(relation(4, osm.Tags{mpTag, {Key: "building", Value: "yes"}}, wayMember(13, "outer"))))
	assert.False(t, m.Relation(relation(5, osm.Tags{mpTag, {Key: "natural", Value: "water"}},
		osm.Member{Type: osm.TypeNode, Ref: 14, Role: "label"})))

	assert.Equal(t, int64(2), m.Stats().Relations)
	assert.True(t, m.IsMember(10))
	assert.False(t, m.IsMember(12))
}

func TestRelationAssembly(t *testing.T) {
	m := NewManager(tagfilter.DefaultWaterRules())
	var c collector

	require.True(t, m.Relation(relation(5, osm.Tags{mpTag, {Key: "natural", Value: "water"}},
		wayMember(100, "outer"),
		wayMember(101, "outer"),
		wayMember(102, "inner"),
	)))

	// Outer ring split in two halves, the second one reversed
	require.NoError(t, m.Way(way(100, nil, 1, 2, 3), c.emit))
	require.NoError(t, m.Way(way(102, nil, 10, 11, 12, 13, 10), c.emit))
	assert.Empty(t, c.areas)
	require.NoError(t, m.Way(way(101, nil, 1, 4, 3), c.emit))
	require.Len(t, c.areas, 1)

	a := c.areas[0]
	assert.Equal(t, int64(11), a.ID)
	assert.Equal(t, int64(5), a.OrigID)
	assert.False(t, a.FromWay)
	assert.Equal(t, "water", a.Tags.Find("natural"))
	require.Len(t, a.Outer, 1)
	assert.Equal(t, []int64{1, 2, 3, 4, 1}, ringIDs(a.Outer[0]))
	require.Len(t, a.Inner, 1)
	assert.Equal(t, []int64{10, 11, 12, 13, 10}, ringIDs(a.Inner[0]))

	assert.Empty(t, m.Incomplete())
	assert.Empty(t, m.ways)
	assert.Empty(t, m.wayRelations)
}

func TestMemberClosedWaysAreAreasToo(t *testing.T) {
	m := NewManager(tagfilter.DefaultWaterRules())
	var c collector

	m.Relation(relation(8, osm.Tags{mpTag, {Key: "natural", Value: "water"}},
		wayMember(20, "outer"), wayMember(21, "inner")))
	require.NoError(t, m.Way(way(20, water, 1, 2, 3, 4, 1), c.emit))
	require.Len(t, c.areas, 1)
	require.NoError(t, m.Way(way(21, water, 5, 6, 7, 5), c.emit))

	// way 20, then way 21, then the relation completed by way 21
	require.Len(t, c.areas, 3)
	assert.Equal(t, int64(40), c.areas[0].ID)
	assert.True(t, c.areas[0].FromWay)
	assert.Equal(t, int64(42), c.areas[1].ID)
	assert.True(t, c.areas[1].FromWay)
	assert.Equal(t, int64(17), c.areas[2].ID)
	assert.Equal(t, int64(8), c.areas[2].OrigID)
	assert.False(t, c.areas[2].FromWay)
	require.Len(t, c.areas[2].Inner, 1)

	stats := m.Stats()
	assert.Equal(t, int64(2), stats.AreasFromWays)
	assert.Equal(t, int64(1), stats.AreasFromRelations)
}

func TestClosedByLocation(t *testing.T) {
	m := NewManager(tagfilter.DefaultWaterRules())
	var c collector

	// Node 9 sits where node 1 is
	w := way(3, water, 1, 2, 3, 9)
	w.Nodes[3].Lat, w.Nodes[3].Lon = w.Nodes[0].Lat, w.Nodes[0].Lon
	require.NoError(t, m.Way(w, c.emit))
	require.Len(t, c.areas, 1)
	assert.Equal(t, []int64{1, 2, 3, 9}, ringIDs(c.areas[0].Outer[0]))

	// Without a location the ends cannot be compared
	w = way(4, water, 1, 2, 3, 9)
	w.Nodes[3].Valid = false
	require.NoError(t, m.Way(w, c.emit))
	assert.Len(t, c.areas, 1)
}

func TestSharedMemberWay(t *testing.T) {
	m := NewManager(tagfilter.DefaultWaterRules())
	var c collector

	tags := osm.Tags{mpTag, {Key: "natural", Value: "water"}}
	m.Relation(relation(1, tags, wayMember(30, "outer")))
	m.Relation(relation(2, tags, wayMember(30, "outer"), wayMember(31, "inner")))

	require.NoError(t, m.Way(way(30, nil, 1, 2, 3, 4, 1), c.emit))
	require.Len(t, c.areas, 1)
	assert.Equal(t, int64(1), c.areas[0].OrigID)
	assert.Contains(t, m.ways, int64(30))

	require.NoError(t, m.Way(way(31, nil, 5, 6, 7, 5), c.emit))
	require.Len(t, c.areas, 2)
	assert.Equal(t, int64(2), c.areas[1].OrigID)
	assert.Empty(t, m.ways)
}

func TestIncompleteSorted(t *testing.T) {
	m := NewManager(tagfilter.DefaultWaterRules())
	tags := osm.Tags{mpTag, {Key: "natural", Value: "water"}}
	m.Relation(relation(9, tags, wayMember(1, "outer")))
	m.Relation(relation(3, tags, wayMember(2, "outer")))
	m.Relation(relation(6, tags, wayMember(3, "outer"), wayMember(4, "outer")))

	var c collector
	require.NoError(t, m.Way(way(3, nil, 1, 2, 3), c.emit))

	assert.Equal(t, []int64{3, 6, 9}, m.Incomplete())
}

func TestOpenRingFails(t *testing.T) {
	m := NewManager(tagfilter.DefaultWaterRules())
	var c collector

	m.Relation(relation(4, osm.Tags{mpTag, {Key: "natural", Value: "water"}},
		wayMember(40, "outer"), wayMember(41, "outer")))
	require.NoError(t, m.Way(way(40, nil, 1, 2, 3), c.emit))
	require.NoError(t, m.Way(way(41, nil, 3, 4, 5), c.emit))

	assert.Empty(t, c.areas)
	assert.Equal(t, int64(1), m.Stats().Failed)
	assert.Empty(t, m.Incomplete())
}

func TestInnerOnlyFails(t *testing.T) {
	m := NewManager(tagfilter.DefaultWaterRules())
	var c collector

	m.Relation(relation(4, osm.Tags{mpTag, {Key: "natural", Value: "water"}}, wayMember(40, "inner")))
	require.NoError(t, m.Way(way(40, nil, 1, 2, 3, 1), c.emit))
	assert.Empty(t, c.areas)
	assert.Equal(t, int64(1), m.Stats().Failed)
}

func TestEmitErrorReturned(t *testing.T) {
	m := NewManager(tagfilter.DefaultWaterRules())
	boom := errors.New("disk full")

	err := m.Way(way(1, water, 1, 2, 3, 1), func(*element.Area) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestAssembleRingsErrors(t *testing.T) {
	_, err := assembleRings([]*element.Way{way(1, nil, 1, 2, 1)})
	assert.ErrorIs(t, err, ErrAssembly)

	rings, err := assembleRings(nil)
	assert.NoError(t, err)
	assert.Nil(t, rings)
}

func ringIDs(r element.Ring) []int64 {
	ids := make([]int64, len(r))
	for i, n := range r {
		ids[i] = n.ID
	}
	return ids
}
