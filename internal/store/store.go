// Package store persists shared shift drafts and per-base status snapshots
// in the shared store directory visible to every operator session.
package store

import (
	"context"

	"github.com/andreddluiz/shiftflow/internal/model"
)

// Store is the shared draft repository. Implementations must tolerate
// concurrent sessions on different machines reading and writing the same
// documents; last writer wins at whole-document granularity.
type Store interface {
	// GetDraft returns the draft for key, or (nil, nil) when absent.
	GetDraft(ctx context.Context, key model.DraftKey) (*model.ShiftDraft, error)
	// SaveDraft writes the full draft document.
	SaveDraft(ctx context.Context, draft *model.ShiftDraft) error
	// DeleteDraft removes the draft for key. Absent drafts are not an error.
	DeleteDraft(ctx context.Context, key model.DraftKey) error

	// GetBaseStatus returns the base snapshot, or (nil, nil) when absent.
	GetBaseStatus(ctx context.Context, baseID string) (*model.BaseStatusSnapshot, error)
	// SaveBaseStatus writes the full base snapshot.
	SaveBaseStatus(ctx context.Context, snapshot *model.BaseStatusSnapshot) error
}
