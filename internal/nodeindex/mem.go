package nodeindex

// MemStore keeps locations in a Go map
type MemStore struct {
	nodes map[int64][2]int32
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{nodes: make(map[int64][2]int32)}
}

// Put stores a node location
func (m *MemStore) Put(id int64, lat, lon float64) error {
	m.nodes[id] = [2]int32{toFixed(lat), toFixed(lon)}
	return nil
}

// Get retrieves a node location
func (m *MemStore) Get(id int64) (lat, lon float64, ok bool) {
	loc, ok := m.nodes[id]
	if !ok {
		return 0, 0, false
	}
	return fromFixed(loc[0]), fromFixed(loc[1]), true
}

// Len returns the number of stored nodes
func (m *MemStore) Len() int {
	return len(m.nodes)
}

// Close drops the map
func (m *MemStore) Close() error {
	m.nodes = nil
	return nil
}
