package nodeindex

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

const (
	// Each node entry: lat (int32) + lon (int32) = 8 bytes
	entrySize = 8
	// Maximum node ID we support
	maxNodeID = 100_000_000_000
	// The file grows in steps of at least this many entries
	growEntries = 1 << 20
)

// MmapStore is a memory-mapped node coordinate array.
// Node coordinates are stored at offset = nodeID * 8, so lookups are O(1).
// The backing file is sparse and grows as larger ids arrive.
type MmapStore struct {
	file      *os.File
	data      mmap.MMap
	size      int64
	temporary bool
}

// NewMmapStore creates a store backed by path, or by a temporary file when
// path is empty
func NewMmapStore(path string) (*MmapStore, error) {
	var (
		f   *os.File
		err error
	)
	if path == "" {
		f, err = os.CreateTemp("", "osm-waterways-nodes-*.bin")
	} else {
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create mmap file: %w", err)
	}

	m := &MmapStore{file: f, temporary: path == ""}
	if err := m.grow(growEntries); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// grow extends the file and the mapping to hold at least n entries
func (m *MmapStore) grow(n int64) error {
	size := n * entrySize
	if size <= m.size {
		return nil
	}
	if size < 2*m.size {
		size = 2 * m.size
	}
	if rem := size % (growEntries * entrySize); rem != 0 {
		size += growEntries*entrySize - rem
	}

	if m.data != nil {
		if err := m.data.Unmap(); err != nil {
			return fmt.Errorf("failed to unmap file: %w", err)
		}
		m.data = nil
	}

	// Truncate to the new size (creates a sparse file on Linux)
	if err := m.file.Truncate(size); err != nil {
		return fmt.Errorf("failed to truncate file: %w", err)
	}

	data, err := mmap.Map(m.file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap file: %w", err)
	}
	m.data = data
	m.size = size
	return nil
}

// Put stores a node's coordinates
func (m *MmapStore) Put(id int64, lat, lon float64) error {
	if id < 0 || id >= maxNodeID {
		return fmt.Errorf("node id %d out of range for dense_mmap_array", id)
	}

	offset := id * entrySize
	if offset+entrySize > m.size {
		if err := m.grow(id + 1); err != nil {
			return err
		}
	}

	binary.LittleEndian.PutUint32(m.data[offset:], uint32(toFixed(lat)))
	binary.LittleEndian.PutUint32(m.data[offset+4:], uint32(toFixed(lon)))
	return nil
}

// Get retrieves a node's coordinates.
// Unwritten slots read as (0, 0), so a node at exactly 0,0 reads as missing.
func (m *MmapStore) Get(id int64) (lat, lon float64, ok bool) {
	if id < 0 {
		return 0, 0, false
	}
	offset := id * entrySize
	if offset+entrySize > m.size {
		return 0, 0, false
	}

	latInt := int32(binary.LittleEndian.Uint32(m.data[offset:]))
	lonInt := int32(binary.LittleEndian.Uint32(m.data[offset+4:]))
	if latInt == 0 && lonInt == 0 {
		return 0, 0, false
	}
	return fromFixed(latInt), fromFixed(lonInt), true
}

// Close unmaps and closes the file, removing it if it was temporary
func (m *MmapStore) Close() error {
	var firstErr error
	if m.data != nil {
		if err := m.data.Unmap(); err != nil {
			firstErr = err
		}
		m.data = nil
	}
	if err := m.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if m.temporary {
		if err := os.Remove(m.file.Name()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
