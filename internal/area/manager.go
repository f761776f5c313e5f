// Package area assembles areas from closed ways and multipolygon relations
// over two passes of an OSM file.
package area

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-waterways/internal/element"
	"github.com/wegman-software/osm-waterways/internal/logger"
	"github.com/wegman-software/osm-waterways/internal/tagfilter"
)

// ErrAssembly is returned when member ways do not form valid rings
var ErrAssembly = errors.New("area assembly failed")

// Stats holds assembly statistics
type Stats struct {
	Relations          int64 // relations kept in pass 1
	MemberWays         int64 // member ways seen in pass 2
	AreasFromWays      int64
	AreasFromRelations int64
	Failed             int64
}

type member struct {
	wayID int64
	inner bool
}

type pendingRelation struct {
	id      int64
	tags    osm.Tags
	members []member
	missing int
}

// Manager collects multipolygon relations in pass 1 and assembles areas in
// pass 2. It is not safe for concurrent use.
type Manager struct {
	filter *tagfilter.RuleSet

	relations map[int64]*pendingRelation
	// member way id -> ids of pending relations that still need it
	wayRelations map[int64][]int64
	ways         map[int64]*element.Way

	stats Stats
}

// NewManager creates a manager that keeps relations and closed ways whose
// tags match filter
func NewManager(filter *tagfilter.RuleSet) *Manager {
	return &Manager{
		filter:       filter,
		relations:    make(map[int64]*pendingRelation),
		wayRelations: make(map[int64][]int64),
		ways:         make(map[int64]*element.Way),
	}
}

// isMultipolygonRelation checks if a relation is a multipolygon or boundary
func isMultipolygonRelation(rel *osm.Relation) bool {
	switch rel.Tags.Find("type") {
	case "multipolygon", "boundary":
		return true
	}
	return false
}

// Relation offers a relation during pass 1. It returns true if the relation
// was kept for assembly.
func (m *Manager) Relation(rel *osm.Relation) bool {
	if !isMultipolygonRelation(rel) || !m.filter.Matches(rel.Tags) {
		return false
	}

	id := int64(rel.ID)
	if _, dup := m.relations[id]; dup {
		return false
	}

	pr := &pendingRelation{id: id}
	seen := make(map[int64]bool)
	for _, mem := range rel.Members {
		if mem.Type != osm.TypeWay {
			continue
		}
		pr.members = append(pr.members, member{wayID: mem.Ref, inner: mem.Role == "inner"})
		if !seen[mem.Ref] {
			seen[mem.Ref] = true
			pr.missing++
		}
	}
	if len(pr.members) == 0 {
		return false
	}

	pr.tags = make(osm.Tags, len(rel.Tags))
	copy(pr.tags, rel.Tags)
	m.relations[id] = pr
	for wayID := range seen {
		m.wayRelations[wayID] = append(m.wayRelations[wayID], id)
	}
	m.stats.Relations++
	return true
}

// IsMember reports whether a way is needed by a kept relation
func (m *Manager) IsMember(wayID int64) bool {
	_, ok := m.wayRelations[wayID]
	return ok
}

// Way offers a resolved way during pass 2. A matching closed way becomes an
// area of its own, whether or not it is also a relation member; relation
// areas follow once their last member way arrives. Completed areas are
// passed to emit; an error from emit is returned as is. Assembly failures
// are counted and logged, never returned.
func (m *Manager) Way(w *element.Way, emit func(*element.Area) error) error {
	if w.IsClosed() && w.Tags.Find("area") != "no" && m.filter.Matches(w.Tags) {
		a, err := areaFromWay(w)
		if err != nil {
			m.fail("way", w.ID, err)
		} else {
			m.stats.AreasFromWays++
			if err := emit(a); err != nil {
				return err
			}
		}
	}

	rels, isMember := m.wayRelations[w.ID]
	if !isMember {
		return nil
	}
	if _, stored := m.ways[w.ID]; stored {
		return nil
	}
	m.ways[w.ID] = w.Clone()
	m.stats.MemberWays++

	// release rewrites wayRelations entries
	rels = append([]int64(nil), rels...)
	for _, relID := range rels {
		pr := m.relations[relID]
		if pr == nil {
			continue
		}
		pr.missing--
		if pr.missing > 0 {
			continue
		}

		a, err := m.assemble(pr)
		m.release(pr)
		if err != nil {
			m.fail("relation", pr.id, err)
			continue
		}
		m.stats.AreasFromRelations++
		if err := emit(a); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) fail(kind string, id int64, err error) {
	m.stats.Failed++
	logger.Get().Debug("Skipping area",
		zap.String("type", kind),
		zap.Int64("id", id),
		zap.Error(err))
}

// release drops a completed relation and the member ways no other pending
// relation needs
func (m *Manager) release(pr *pendingRelation) {
	delete(m.relations, pr.id)
	for _, mem := range pr.members {
		rels := m.wayRelations[mem.wayID]
		kept := rels[:0]
		for _, id := range rels {
			if id != pr.id {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(m.wayRelations, mem.wayID)
			delete(m.ways, mem.wayID)
		} else {
			m.wayRelations[mem.wayID] = kept
		}
	}
}

func (m *Manager) assemble(pr *pendingRelation) (*element.Area, error) {
	var outerWays, innerWays []*element.Way
	for _, mem := range pr.members {
		w := m.ways[mem.wayID]
		if w == nil {
			return nil, fmt.Errorf("%w: member way %d missing", ErrAssembly, mem.wayID)
		}
		if mem.inner {
			innerWays = append(innerWays, w)
		} else {
			outerWays = append(outerWays, w)
		}
	}

	outer, err := assembleRings(dedupe(outerWays))
	if err != nil {
		return nil, fmt.Errorf("outer: %w", err)
	}
	if len(outer) == 0 {
		return nil, fmt.Errorf("%w: no outer ring", ErrAssembly)
	}
	inner, err := assembleRings(dedupe(innerWays))
	if err != nil {
		return nil, fmt.Errorf("inner: %w", err)
	}

	return &element.Area{
		ID:     element.AreaIDFromRelation(pr.id),
		OrigID: pr.id,
		Tags:   pr.tags,
		Outer:  outer,
		Inner:  inner,
	}, nil
}

func areaFromWay(w *element.Way) (*element.Area, error) {
	ring := make(element.Ring, len(w.Nodes))
	copy(ring, w.Nodes)
	if err := checkLocations(ring); err != nil {
		return nil, err
	}
	return &element.Area{
		ID:      element.AreaIDFromWay(w.ID),
		OrigID:  w.ID,
		FromWay: true,
		Tags:    w.Tags,
		Outer:   []element.Ring{ring},
	}, nil
}

// dedupe drops ways listed more than once with the same role
func dedupe(ways []*element.Way) []*element.Way {
	seen := make(map[int64]bool, len(ways))
	out := ways[:0]
	for _, w := range ways {
		if !seen[w.ID] {
			seen[w.ID] = true
			out = append(out, w)
		}
	}
	return out
}

// Incomplete returns the ids of relations still missing member ways, sorted
func (m *Manager) Incomplete() []int64 {
	ids := make([]int64, 0, len(m.relations))
	for id := range m.relations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stats returns assembly statistics
func (m *Manager) Stats() Stats {
	return m.stats
}
