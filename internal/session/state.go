// Package session implements the per-operator editing session: the live
// draft state, the debounced autosave, the store poller, and the finalize
// workflow.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/andreddluiz/shiftflow/internal/model"
)

var (
	// ErrNoSelection is returned by operations that need an active period.
	ErrNoSelection = errors.New("no shift period selected")
	// ErrNotEditable is returned when the draft is mid-validation or
	// finalized without an explicit reopen.
	ErrNotEditable = errors.New("draft is not editable in its current status")
)

// DuplicateCollaboratorError reports an attempt to assign one collaborator
// to two team slots in the same shift.
type DuplicateCollaboratorError struct {
	CollaboratorID string
	Slot           int
}

func (e *DuplicateCollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s is already assigned to slot %d", e.CollaboratorID, e.Slot)
}

// EditState holds the live draft being edited. It is not safe for
// concurrent use; the session serializes access under its own mutex.
type EditState struct {
	draft    *model.ShiftDraft
	reopened bool
	dirty    bool
}

func NewEditState(draft *model.ShiftDraft) *EditState {
	return &EditState{draft: draft}
}

// Draft returns the live draft pointer. Callers must not retain it across
// mutations.
func (s *EditState) Draft() *model.ShiftDraft { return s.draft }

// Snapshot returns an independent copy of the draft.
func (s *EditState) Snapshot() *model.ShiftDraft { return s.draft.Clone() }

func (s *EditState) Reopened() bool     { return s.reopened }
func (s *EditState) SetReopened(v bool) { s.reopened = v }
func (s *EditState) Dirty() bool        { return s.dirty }
func (s *EditState) ClearDirty()        { s.dirty = false }

// Replace swaps in a draft received from the store, dropping any unflushed
// local changes. Last writer wins at whole-document granularity.
func (s *EditState) Replace(draft *model.ShiftDraft) {
	s.draft = draft
	s.dirty = false
}

// Mutate applies fn to the draft when its status permits editing, then
// stamps UpdatedAt and marks the state dirty. fn returning an error leaves
// the timestamp untouched but may have partially modified the draft;
// mutators validate before writing.
func (s *EditState) Mutate(now time.Time, fn func(d *model.ShiftDraft) error) error {
	if !model.Editable(s.draft.Status, s.reopened) {
		return ErrNotEditable
	}
	if err := fn(s.draft); err != nil {
		return err
	}
	s.draft.UpdatedAt = now.UnixMilli()
	s.dirty = true
	return nil
}

// AssignSlot places a collaborator in a team slot. An empty collaborator ID
// clears the slot. The same collaborator cannot occupy two slots.
func (s *EditState) AssignSlot(slot int, collaboratorID string, now time.Time) error {
	return s.Mutate(now, func(d *model.ShiftDraft) error {
		if slot < 0 || slot >= len(d.TeamSlots) {
			return fmt.Errorf("team slot %d out of range (have %d slots)", slot, len(d.TeamSlots))
		}
		if collaboratorID != "" {
			for i, existing := range d.TeamSlots {
				if existing == collaboratorID && i != slot {
					return &DuplicateCollaboratorError{CollaboratorID: collaboratorID, Slot: i}
				}
			}
		}
		d.TeamSlots[slot] = collaboratorID
		return nil
	})
}

// SetTaskValue records the raw entered value for a catalog task. An empty
// value clears the entry.
func (s *EditState) SetTaskValue(taskID, value string, now time.Time) error {
	return s.Mutate(now, func(d *model.ShiftDraft) error {
		if value == "" {
			delete(d.TaskValues, taskID)
			return nil
		}
		d.TaskValues[taskID] = value
		return nil
	})
}

// SetNotes replaces the shift notes.
func (s *EditState) SetNotes(notes string, now time.Time) error {
	return s.Mutate(now, func(d *model.ShiftDraft) error {
		d.Notes = notes
		return nil
	})
}

// AddNonRoutine appends a free-form production row.
func (s *EditState) AddNonRoutine(entry model.NonRoutineEntry, now time.Time) error {
	return s.Mutate(now, func(d *model.ShiftDraft) error {
		d.NonRoutine = append(d.NonRoutine, entry)
		return nil
	})
}

// UpdateNonRoutine replaces the row at index.
func (s *EditState) UpdateNonRoutine(index int, entry model.NonRoutineEntry, now time.Time) error {
	return s.Mutate(now, func(d *model.ShiftDraft) error {
		if index < 0 || index >= len(d.NonRoutine) {
			return fmt.Errorf("non-routine row %d out of range", index)
		}
		d.NonRoutine[index] = entry
		return nil
	})
}

// RemoveNonRoutine deletes the row at index.
func (s *EditState) RemoveNonRoutine(index int, now time.Time) error {
	return s.Mutate(now, func(d *model.ShiftDraft) error {
		if index < 0 || index >= len(d.NonRoutine) {
			return fmt.Errorf("non-routine row %d out of range", index)
		}
		d.NonRoutine = append(d.NonRoutine[:index], d.NonRoutine[index+1:]...)
		return nil
	})
}
