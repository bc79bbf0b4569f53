package journal

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// InMemoryJournal is a size-limited journal that keeps the newest records.
type InMemoryJournal struct {
	mu         sync.Mutex
	maxRecords int
	records    []CycleRecord
}

var _ Journal = &InMemoryJournal{}

func NewInMemoryJournal(maxRecords int) *InMemoryJournal {
	if maxRecords <= 0 {
		maxRecords = 1000
	}
	return &InMemoryJournal{maxRecords: maxRecords}
}

func (j *InMemoryJournal) Close() error { return nil }

func (j *InMemoryJournal) Record(ctx context.Context, rec CycleRecord) error {
	if j == nil {
		return errors.New("in-memory journal: nil journal")
	}
	if strings.TrimSpace(rec.CycleID) == "" {
		return errors.New("in-memory journal: cycle id is empty")
	}
	_ = ctx

	j.mu.Lock()
	defer j.mu.Unlock()

	rec = cloneRecord(rec)
	for i := range j.records {
		if j.records[i].CycleID == rec.CycleID {
			j.records[i] = rec
			return nil
		}
	}
	j.records = append(j.records, rec)
	if len(j.records) > j.maxRecords {
		drop := len(j.records) - j.maxRecords
		j.records = append([]CycleRecord(nil), j.records[drop:]...)
	}
	return nil
}

func (j *InMemoryJournal) List(ctx context.Context, limit int) ([]CycleRecord, error) {
	if j == nil {
		return nil, errors.New("in-memory journal: nil journal")
	}
	_ = ctx
	if limit <= 0 {
		limit = 200
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]CycleRecord, 0, min(limit, len(j.records)))
	for i := len(j.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneRecord(j.records[i]))
	}
	return out, nil
}

func cloneRecord(r CycleRecord) CycleRecord {
	out := r
	out.Styles = append([]string(nil), r.Styles...)
	if r.TimeToFirstTokenMs != nil {
		v := *r.TimeToFirstTokenMs
		out.TimeToFirstTokenMs = &v
	}
	if r.TotalTimeMs != nil {
		v := *r.TotalTimeMs
		out.TotalTimeMs = &v
	}
	return out
}
