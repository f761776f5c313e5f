package nodeindex

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Writes are batched; a Get flushes the pending batch first.
const levelBatchSize = 10_000

// LevelDBStore keeps locations in a LevelDB database keyed by big-endian node id
type LevelDBStore struct {
	db        *leveldb.DB
	batch     *leveldb.Batch
	dir       string
	temporary bool
}

// NewLevelDBStore opens a store in dir, or in a temporary directory when dir
// is empty
func NewLevelDBStore(dir string) (*LevelDBStore, error) {
	temporary := dir == ""
	if temporary {
		tmp, err := os.MkdirTemp("", "osm-waterways-nodes-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		dir = tmp
	}

	db, err := leveldb.OpenFile(dir, &opt.Options{
		WriteBuffer:        64 * opt.MiB,
		BlockCacheCapacity: 64 * opt.MiB,
		NoSync:             true,
	})
	if err != nil {
		if temporary {
			os.RemoveAll(dir)
		}
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}

	return &LevelDBStore{
		db:        db,
		batch:     new(leveldb.Batch),
		dir:       dir,
		temporary: temporary,
	}, nil
}

func levelKey(id int64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(id))
	return k[:]
}

// Put stores a node location
func (s *LevelDBStore) Put(id int64, lat, lon float64) error {
	var v [8]byte
	binary.LittleEndian.PutUint32(v[:4], uint32(toFixed(lat)))
	binary.LittleEndian.PutUint32(v[4:], uint32(toFixed(lon)))
	s.batch.Put(levelKey(id), v[:])
	if s.batch.Len() >= levelBatchSize {
		return s.flush()
	}
	return nil
}

func (s *LevelDBStore) flush() error {
	if s.batch.Len() == 0 {
		return nil
	}
	if err := s.db.Write(s.batch, nil); err != nil {
		return fmt.Errorf("failed to write node batch: %w", err)
	}
	s.batch.Reset()
	return nil
}

// Get retrieves a node location
func (s *LevelDBStore) Get(id int64) (lat, lon float64, ok bool) {
	if err := s.flush(); err != nil {
		return 0, 0, false
	}
	v, err := s.db.Get(levelKey(id), nil)
	if err != nil || len(v) != 8 {
		return 0, 0, false
	}
	return fromFixed(int32(binary.LittleEndian.Uint32(v[:4]))),
		fromFixed(int32(binary.LittleEndian.Uint32(v[4:]))), true
}

// Close flushes pending writes and closes the database
func (s *LevelDBStore) Close() error {
	err := s.flush()
	if cerr := s.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if s.temporary {
		if rerr := os.RemoveAll(s.dir); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}
