package area

import (
	"fmt"

	"github.com/wegman-software/osm-waterways/internal/element"
)

// assembleRings connects way segments into closed rings by shared end nodes.
// Every segment must end up in a closed ring of at least four nodes, and
// every ring node must have a location.
func assembleRings(ways []*element.Way) ([]element.Ring, error) {
	if len(ways) == 0 {
		return nil, nil
	}

	var rings []element.Ring
	used := make([]bool, len(ways))

	for {
		// Find first unused way to start a new ring
		startIdx := -1
		for i, u := range used {
			if !u && len(ways[i].Nodes) > 0 {
				startIdx = i
				break
			}
			used[i] = true
		}
		if startIdx == -1 {
			break
		}

		ring := make(element.Ring, 0, len(ways[startIdx].Nodes)*2)
		ring = append(ring, ways[startIdx].Nodes...)
		used[startIdx] = true

		// Keep connecting until ring is closed or no way fits
		for !closed(ring) {
			end := ring[len(ring)-1].ID
			found := false

			for i, w := range ways {
				if used[i] || len(w.Nodes) < 2 {
					continue
				}
				first, last := w.Nodes[0].ID, w.Nodes[len(w.Nodes)-1].ID

				// Start of way matches end of ring
				if first == end {
					ring = append(ring, w.Nodes[1:]...)
					used[i] = true
					found = true
					break
				}

				// End of way matches end of ring, append reversed
				if last == end {
					for j := len(w.Nodes) - 2; j >= 0; j-- {
						ring = append(ring, w.Nodes[j])
					}
					used[i] = true
					found = true
					break
				}
			}

			if !found {
				return nil, fmt.Errorf("%w: open ring ending at node %d", ErrAssembly, end)
			}
		}

		if len(ring) < 4 {
			return nil, fmt.Errorf("%w: ring with %d nodes", ErrAssembly, len(ring))
		}
		if err := checkLocations(ring); err != nil {
			return nil, err
		}
		rings = append(rings, ring)
	}

	return rings, nil
}

func closed(ring element.Ring) bool {
	return len(ring) >= 2 && ring[0].ID == ring[len(ring)-1].ID
}

func checkLocations(ring element.Ring) error {
	for _, n := range ring {
		if !n.Valid {
			return fmt.Errorf("%w: node %d has no location", ErrAssembly, n.ID)
		}
	}
	return nil
}
