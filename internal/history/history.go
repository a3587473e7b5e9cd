// Package history archives finalized shift records and answers the
// duplicate checks that run before a finalize commits.
package history

import (
	"context"
	"time"

	"github.com/andreddluiz/shiftflow/internal/model"
)

// Collaborator is the identity of one team member on a finalized record.
type Collaborator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Record is one finalized shift, archived immutably. Payload keeps the full
// draft document as committed so past shifts can be reopened for audit.
type Record struct {
	ID             string
	BaseID         string
	Date           string
	ShiftSlotID    string
	OperatorID     string
	FinalizedAt    time.Time
	AvailableHours float64
	ProducedHours  float64
	Performance    float64
	Collaborators  []Collaborator
	Payload        *model.ShiftDraft
}

// ConflictReport describes what already exists in history for a period the
// operator is about to finalize.
type ConflictReport struct {
	// DuplicateRecordID is set when a record for the same base, date, and
	// shift slot already exists.
	DuplicateRecordID string `json:"duplicate_record_id,omitempty"`
	// DuplicateCollaboratorNames lists collaborators assigned to the new
	// record who already appear on another record for the same base and
	// date.
	DuplicateCollaboratorNames []string `json:"duplicate_collaborator_names,omitempty"`
}

// HasConflicts reports whether the operator must confirm before committing.
func (r *ConflictReport) HasConflicts() bool {
	return r.DuplicateRecordID != "" || len(r.DuplicateCollaboratorNames) > 0
}

// Store is the archive of finalized shift records.
type Store interface {
	// QueryConflicts inspects existing records for the given period and
	// collaborator set without modifying anything.
	QueryConflicts(ctx context.Context, key model.DraftKey, collaboratorIDs []string) (*ConflictReport, error)
	// Commit inserts rec. When replaceID is non-empty the existing record
	// with that ID is replaced in the same transaction.
	Commit(ctx context.Context, rec *Record, replaceID string) error
	// Get returns the record for the period, or (nil, nil) when absent.
	Get(ctx context.Context, key model.DraftKey) (*Record, error)
	// Close releases underlying resources.
	Close() error
}
