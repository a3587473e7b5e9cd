package history

import (
	"context"
	"sync"

	"github.com/andreddluiz/shiftflow/internal/model"
)

// MemStore is an in-memory history archive used by tests.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]*Record // keyed by record ID
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*Record)}
}

func (s *MemStore) QueryConflicts(ctx context.Context, key model.DraftKey, collaboratorIDs []string) (*ConflictReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := &ConflictReport{}

	for _, rec := range s.records {
		if rec.BaseID != key.BaseID || rec.Date != key.Date {
			continue
		}
		if rec.ShiftSlotID == key.ShiftSlotID {
			report.DuplicateRecordID = rec.ID
			continue
		}
		for _, want := range collaboratorIDs {
			for _, have := range rec.Collaborators {
				if have.ID == want {
					report.DuplicateCollaboratorNames = append(report.DuplicateCollaboratorNames, have.Name)
				}
			}
		}
	}

	return report, nil
}

func (s *MemStore) Commit(ctx context.Context, rec *Record, replaceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if replaceID != "" {
		delete(s.records, replaceID)
	}

	clone := *rec
	clone.Collaborators = append([]Collaborator(nil), rec.Collaborators...)
	if rec.Payload != nil {
		clone.Payload = rec.Payload.Clone()
	}
	s.records[rec.ID] = &clone
	return nil
}

func (s *MemStore) Get(ctx context.Context, key model.DraftKey) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.BaseID == key.BaseID && rec.Date == key.Date && rec.ShiftSlotID == key.ShiftSlotID {
			clone := *rec
			clone.Collaborators = append([]Collaborator(nil), rec.Collaborators...)
			if rec.Payload != nil {
				clone.Payload = rec.Payload.Clone()
			}
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *MemStore) Close() error { return nil }
