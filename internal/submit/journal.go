package submit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"carevault.org/internal/ledger"
)

// ErrSeqConflict is returned by a journal when an entry does not extend it by exactly one.
var ErrSeqConflict = errors.New("submit: journal sequence conflict")

// Entry is one accepted operation as persisted in the journal.
type Entry struct {
	Seq    uint64          `json:"seq"`
	TxID   string          `json:"tx_id"`
	Op     string          `json:"op"`
	Caller ledger.Address  `json:"caller"`
	At     time.Time       `json:"at"`
	Args   json.RawMessage `json:"args"`
}

// Journal is the durable, ordered log of accepted operations.
type Journal interface {
	Append(ctx context.Context, e Entry) error
	Load(ctx context.Context, afterSeq uint64, limit int) ([]Entry, error)
}

// MemoryJournal keeps entries in process memory.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryJournal() *MemoryJournal { return &MemoryJournal{} }

func (j *MemoryJournal) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if e.Seq != uint64(len(j.entries))+1 {
		return ErrSeqConflict
	}
	e.Args = append(json.RawMessage(nil), e.Args...)
	j.entries = append(j.entries, e)
	return nil
}

func (j *MemoryJournal) Load(ctx context.Context, afterSeq uint64, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if afterSeq >= uint64(len(j.entries)) {
		return nil, nil
	}
	end := uint64(len(j.entries))
	if limit > 0 && afterSeq+uint64(limit) < end {
		end = afterSeq + uint64(limit)
	}
	return append([]Entry(nil), j.entries[afterSeq:end]...), nil
}

// Len reports the number of journaled entries.
func (j *MemoryJournal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}
