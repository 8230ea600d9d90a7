// snapshot.go implements snapshot management.
//
// Snapshots provide consistent point-in-time views of the database.
// All reads from a snapshot see the database state at creation time.
//
package db

import (
	"sync/atomic"
	"time"
)

// Snapshot provides a consistent read view of the database.
type Snapshot struct {
	db        *DBImpl
	sequence  uint64
	refs      atomic.Int32
	createdAt int64 // Unix timestamp when snapshot was created

	// Linked list pointers used by DBImpl to track live snapshots.
	prev *Snapshot
	next *Snapshot
}

// newSnapshot creates a new snapshot at the given sequence number.
func newSnapshot(db *DBImpl, seq uint64) *Snapshot {
	s := &Snapshot{
		db:        db,
		sequence:  seq,
		createdAt: time.Now().Unix(),
	}
	s.refs.Store(1)
	return s
}

// Sequence returns the sequence number at which this snapshot was taken.
func (s *Snapshot) Sequence() uint64 {
	return s.sequence
}

// Release releases the snapshot. After calling Release, the snapshot must
// not be used again.
func (s *Snapshot) Release() {
	if s.refs.Add(-1) == 0 {
		if s.db != nil {
			s.db.releaseSnapshot(s)
		}
	}
}
