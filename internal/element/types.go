package element

import "github.com/paulmach/osm"

// NodeRef is a way member node with its resolved location.
// Valid is false when the location store had no entry for the node.
type NodeRef struct {
	ID    int64
	Lat   float64
	Lon   float64
	Valid bool
}

// Way is a way whose node references have been run through the location store
type Way struct {
	ID    int64
	Tags  osm.Tags
	Nodes []NodeRef
}

// IsClosed reports whether the way has at least four nodes and ends where
// it starts: at the same node, or at two distinct nodes sharing a location.
func (w *Way) IsClosed() bool {
	if len(w.Nodes) < 4 {
		return false
	}
	first, last := w.Nodes[0], w.Nodes[len(w.Nodes)-1]
	if first.ID == last.ID {
		return true
	}
	return first.Valid && last.Valid && first.Lat == last.Lat && first.Lon == last.Lon
}

// Clone returns a deep copy that stays valid after the callback returns
func (w *Way) Clone() *Way {
	nodes := make([]NodeRef, len(w.Nodes))
	copy(nodes, w.Nodes)
	tags := make(osm.Tags, len(w.Tags))
	copy(tags, w.Tags)
	return &Way{ID: w.ID, Tags: tags, Nodes: nodes}
}

// Ring is a closed sequence of node references (first == last)
type Ring []NodeRef

// Area is an assembled polygon built from a closed way or a multipolygon relation.
//
// ID is the synthetic area id: 2*wayID for areas from ways and 2*relationID+1
// for areas from relations. OrigID is the id of the source object.
type Area struct {
	ID      int64
	OrigID  int64
	FromWay bool
	Tags    osm.Tags
	Outer   []Ring
	Inner   []Ring
}

// AreaIDFromWay returns the synthetic area id for an area built from a way
func AreaIDFromWay(wayID int64) int64 {
	return wayID * 2
}

// AreaIDFromRelation returns the synthetic area id for an area built from a relation
func AreaIDFromRelation(relationID int64) int64 {
	return relationID*2 + 1
}

// OrigType returns "way" or "relation" depending on the area source
func (a *Area) OrigType() string {
	if a.FromWay {
		return "way"
	}
	return "relation"
}
