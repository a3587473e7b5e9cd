package model

import "fmt"

// DraftStatus tracks a shift draft through the finalization state machine.
type DraftStatus string

const (
	DraftStatusDraft      DraftStatus = "draft"
	DraftStatusValidating DraftStatus = "validating"
	DraftStatusFinalized  DraftStatus = "finalized"
)

// Finalized drafts are immutable historical records. The finalized → draft
// edge exists only for the explicit edit-reopen path, which the session
// guards separately.
var validDraftTransitions = map[DraftStatus]map[DraftStatus]bool{
	DraftStatusDraft: {
		DraftStatusValidating: true,
	},
	DraftStatusValidating: {
		DraftStatusDraft:     true, // validation failure
		DraftStatusFinalized: true,
	},
	DraftStatusFinalized: {
		DraftStatusDraft: true, // edit-reopen only
	},
}

// ValidateDraftTransition checks a single status edge.
func ValidateDraftTransition(from, to DraftStatus) error {
	allowed, ok := validDraftTransitions[from]
	if !ok {
		return fmt.Errorf("unknown draft status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid draft transition: %q → %q", from, to)
	}
	return nil
}

// Editable reports whether a draft in status s accepts mutations.
// A finalized draft is editable only during an explicit edit-reopen.
func Editable(s DraftStatus, reopened bool) bool {
	switch s {
	case DraftStatusDraft:
		return true
	case DraftStatusFinalized:
		return reopened
	default:
		return false
	}
}
