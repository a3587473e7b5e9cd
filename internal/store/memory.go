package store

import (
	"context"
	"sync"

	"github.com/andreddluiz/shiftflow/internal/model"
)

// MemStore is an in-memory Store used by tests. Documents are deep-copied
// on the way in and out so callers cannot alias stored state.
type MemStore struct {
	mu        sync.RWMutex
	drafts    map[string]*model.ShiftDraft
	snapshots map[string]*model.BaseStatusSnapshot
}

func NewMemStore() *MemStore {
	return &MemStore{
		drafts:    make(map[string]*model.ShiftDraft),
		snapshots: make(map[string]*model.BaseStatusSnapshot),
	}
}

func (s *MemStore) GetDraft(ctx context.Context, key model.DraftKey) (*model.ShiftDraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.drafts[key.String()]
	if !ok {
		return nil, nil
	}
	return draft.Clone(), nil
}

func (s *MemStore) SaveDraft(ctx context.Context, draft *model.ShiftDraft) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drafts[draft.Key().String()] = draft.Clone()
	return nil
}

func (s *MemStore) DeleteDraft(ctx context.Context, key model.DraftKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.drafts, key.String())
	return nil
}

func (s *MemStore) GetBaseStatus(ctx context.Context, baseID string) (*model.BaseStatusSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[baseID]
	if !ok {
		return nil, nil
	}
	return snapshot.Clone(), nil
}

func (s *MemStore) SaveBaseStatus(ctx context.Context, snapshot *model.BaseStatusSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.BaseID] = snapshot.Clone()
	return nil
}
