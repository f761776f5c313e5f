package element

import "testing"

func TestWayIsClosed(t *testing.T) {
	at := func(id int64, lat, lon float64) NodeRef {
		return NodeRef{ID: id, Lat: lat, Lon: lon, Valid: true}
	}
	missing := func(id int64) NodeRef { return NodeRef{ID: id} }

	tests := []struct {
		name  string
		nodes []NodeRef
		want  bool
	}{
		{"same end node", []NodeRef{at(1, 0, 0), at(2, 0, 1), at(3, 1, 1), at(1, 0, 0)}, true},
		{"same end node without location", []NodeRef{missing(1), at(2, 0, 1), at(3, 1, 1), missing(1)}, true},
		{"distinct end nodes at one location", []NodeRef{at(1, 0, 0), at(2, 0, 1), at(3, 1, 1), at(4, 0, 0)}, true},
		{"distinct end nodes apart", []NodeRef{at(1, 0, 0), at(2, 0, 1), at(3, 1, 1), at(4, 1, 0)}, false},
		{"end node without location", []NodeRef{at(1, 0, 0), at(2, 0, 1), at(3, 1, 1), missing(4)}, false},
		{"too short", []NodeRef{at(1, 0, 0), at(2, 0, 1), at(1, 0, 0)}, false},
	}
	for _, tt := range tests {
		w := &Way{ID: 1, Nodes: tt.nodes}
		if got := w.IsClosed(); got != tt.want {
			t.Errorf("%s: IsClosed() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
