package pipeline

import (
	"github.com/wegman-software/osm-waterways/internal/area"
	"github.com/wegman-software/osm-waterways/internal/element"
)

// Handler receives the objects of pass 2. Values passed in are only valid
// for the duration of the call.
type Handler interface {
	// Way is called for every way in input order, with locations resolved
	Way(w *element.Way) error
	// Area is called for every assembled area in completion order
	Area(a *element.Area) error
}

// Stats holds run statistics
type Stats struct {
	Relations        int64 // relations read in pass 1
	Nodes            int64
	Ways             int64
	MissingLocations int64 // way node references without a stored location
	BytesRead        int64
	Areas            area.Stats
	// Incomplete lists multipolygon relations with member ways missing from the input
	Incomplete []int64
}
