package state

import (
	"fmt"
	"sort"
)

// journalEntry is a modification that can be undone.
type journalEntry interface {
	revert(m *Manager)
}

type revision struct {
	id           int
	journalIndex int
}

// journal records every dirty write and appended event since the last commit
// so snapshots can be rolled back in reverse order.
type journal struct {
	entries        []journalEntry
	validRevisions []revision
	nextRevisionID int
}

func newJournal() *journal {
	return &journal{}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) snapshot() int {
	id := j.nextRevisionID
	j.nextRevisionID++
	j.validRevisions = append(j.validRevisions, revision{id: id, journalIndex: len(j.entries)})
	return id
}

func (j *journal) revertToSnapshot(id int, m *Manager) error {
	idx := sort.Search(len(j.validRevisions), func(i int) bool {
		return j.validRevisions[i].id >= id
	})
	if idx == len(j.validRevisions) || j.validRevisions[idx].id != id {
		return fmt.Errorf("state: revision %d cannot be reverted", id)
	}
	index := j.validRevisions[idx].journalIndex
	for i := len(j.entries) - 1; i >= index; i-- {
		j.entries[i].revert(m)
	}
	j.entries = j.entries[:index]
	j.validRevisions = j.validRevisions[:idx]
	return nil
}

func (j *journal) reset() {
	j.entries = j.entries[:0]
	j.validRevisions = j.validRevisions[:0]
}

func (j *journal) length() int { return len(j.entries) }

type kvChange struct {
	key     string
	prev    []byte
	existed bool
}

func (c kvChange) revert(m *Manager) {
	if c.existed {
		m.dirty[c.key] = c.prev
		return
	}
	delete(m.dirty, c.key)
}

type eventChange struct{}

func (eventChange) revert(m *Manager) {
	if n := len(m.pending); n > 0 {
		m.pending = m.pending[:n-1]
	}
}
