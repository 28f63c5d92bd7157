package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrNoCheckpoint = errors.New("storage: no checkpoint stored")

const latestKey = "checkpoint/latest"

func checkpointKey(digest [32]byte) []byte {
	return append([]byte("checkpoint/state/"), digest[:]...)
}

// CheckpointStore persists protocol state snapshots keyed by their content
// digest, plus a pointer to the most recent one. Snapshots are immutable:
// writing the same digest twice stores identical bytes.
type CheckpointStore struct {
	db Database
}

// NewCheckpointStore wraps a database in the checkpoint layout.
func NewCheckpointStore(db Database) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Save stores a snapshot under its digest and marks it latest. The stored
// record prefixes the bytes with their length so corruption is detectable on
// load.
func (s *CheckpointStore) Save(encoded []byte, digest [32]byte) error {
	record := make([]byte, 8+len(encoded))
	binary.BigEndian.PutUint64(record, uint64(len(encoded)))
	copy(record[8:], encoded)
	if err := s.db.Put(checkpointKey(digest), record); err != nil {
		return fmt.Errorf("storage: save checkpoint: %w", err)
	}
	if err := s.db.Put([]byte(latestKey), digest[:]); err != nil {
		return fmt.Errorf("storage: mark latest checkpoint: %w", err)
	}
	return nil
}

// Load fetches the snapshot stored under a digest.
func (s *CheckpointStore) Load(digest [32]byte) ([]byte, error) {
	record, err := s.db.Get(checkpointKey(digest))
	if err != nil {
		return nil, ErrNoCheckpoint
	}
	if len(record) < 8 {
		return nil, fmt.Errorf("storage: truncated checkpoint record")
	}
	size := binary.BigEndian.Uint64(record)
	if uint64(len(record)-8) != size {
		return nil, fmt.Errorf("storage: checkpoint length %d does not match header %d", len(record)-8, size)
	}
	return record[8:], nil
}

// LoadLatest fetches the most recently saved snapshot and its digest.
func (s *CheckpointStore) LoadLatest() ([]byte, [32]byte, error) {
	raw, err := s.db.Get([]byte(latestKey))
	if err != nil {
		return nil, [32]byte{}, ErrNoCheckpoint
	}
	if len(raw) != 32 {
		return nil, [32]byte{}, fmt.Errorf("storage: malformed latest-checkpoint pointer")
	}
	var digest [32]byte
	copy(digest[:], raw)
	encoded, err := s.Load(digest)
	if err != nil {
		return nil, [32]byte{}, err
	}
	return encoded, digest, nil
}
