package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/andreddluiz/shiftflow/internal/events"
	"github.com/andreddluiz/shiftflow/internal/history"
	"github.com/andreddluiz/shiftflow/internal/model"
)

// Violation is one blocking problem found during finalize validation.
type Violation struct {
	CategoryID   string `json:"category_id,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
	TaskName     string `json:"task_name,omitempty"`
	Message      string `json:"message"`
}

// ValidationError carries every violation found; the draft stays editable.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("draft validation failed: %s", strings.Join(msgs, "; "))
}

// ConfirmRequiredError reports history conflicts that the operator must
// acknowledge before the finalize commits.
type ConfirmRequiredError struct {
	Conflicts *history.ConflictReport
}

func (e *ConfirmRequiredError) Error() string {
	var parts []string
	if e.Conflicts.DuplicateRecordID != "" {
		parts = append(parts, "a record for this period already exists")
	}
	if len(e.Conflicts.DuplicateCollaboratorNames) > 0 {
		parts = append(parts, fmt.Sprintf("already recorded on this date: %s",
			strings.Join(e.Conflicts.DuplicateCollaboratorNames, ", ")))
	}
	return fmt.Sprintf("finalize needs confirmation: %s", strings.Join(parts, "; "))
}

// FinalizeOptions controls conflict handling.
type FinalizeOptions struct {
	// Confirm accepts known history conflicts; the duplicate period record,
	// if any, is replaced.
	Confirm bool `json:"confirm"`
}

// FinalizeResult summarizes the committed record.
type FinalizeResult struct {
	RecordID         string  `json:"record_id"`
	ReplacedRecordID string  `json:"replaced_record_id,omitempty"`
	AvailableHours   float64 `json:"available_hours"`
	ProducedHours    float64 `json:"produced_hours"`
	Performance      float64 `json:"performance"`
}

// Finalize validates the draft, checks history for conflicts, commits an
// immutable record, and resets the live state asymmetrically: production
// fields are cleared while notes and control-panel rows carry over to the
// next shift through the base snapshot.
func (s *Session) Finalize(ctx context.Context, opts FinalizeOptions) (*FinalizeResult, error) {
	// No edit may be lost between validation and commit.
	s.autosave.Flush()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return nil, ErrNoSelection
	}

	d := s.state.Draft()
	if violations := s.validateDraft(d); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	if err := model.ValidateDraftTransition(d.Status, model.DraftStatusValidating); err != nil {
		return nil, err
	}
	d.Status = model.DraftStatusValidating

	assigned := d.AssignedCollaborators()
	conflicts, err := s.history.QueryConflicts(ctx, d.Key(), assigned)
	if err != nil {
		d.Status = model.DraftStatusDraft
		return nil, fmt.Errorf("check history conflicts: %w", err)
	}

	replaceID := s.reopenedRecordID
	// Replacing the record we reopened is the point of the reopen flow, not
	// a conflict.
	if conflicts.DuplicateRecordID != "" && conflicts.DuplicateRecordID == replaceID {
		conflicts.DuplicateRecordID = ""
	}
	if conflicts.HasConflicts() {
		if !opts.Confirm {
			d.Status = model.DraftStatusDraft
			return nil, &ConfirmRequiredError{Conflicts: conflicts}
		}
		if conflicts.DuplicateRecordID != "" {
			replaceID = conflicts.DuplicateRecordID
		}
	}

	now := s.now()
	available := model.AvailableHours(d, s.cfg.Team)
	produced := model.ProducedHours(d, s.cfg.Catalog)
	performance := model.Performance(produced, available)

	if err := model.ValidateDraftTransition(d.Status, model.DraftStatusFinalized); err != nil {
		d.Status = model.DraftStatusDraft
		return nil, err
	}
	d.Status = model.DraftStatusFinalized
	d.UpdatedAt = now.UnixMilli()

	rec := &history.Record{
		ID:             newRecordID(),
		BaseID:         d.BaseID,
		Date:           d.Date,
		ShiftSlotID:    d.ShiftSlotID,
		OperatorID:     s.cfg.Session.OperatorID,
		FinalizedAt:    now,
		AvailableHours: available,
		ProducedHours:  produced,
		Performance:    performance,
		Payload:        d.Clone(),
	}
	for _, id := range assigned {
		c, _ := s.cfg.Team.CollaboratorByID(id)
		rec.Collaborators = append(rec.Collaborators, history.Collaborator{ID: id, Name: c.Name})
	}

	if err := s.history.Commit(ctx, rec, replaceID); err != nil {
		d.Status = model.DraftStatusDraft
		return nil, fmt.Errorf("commit record: %w", err)
	}

	// Asymmetric reset: notes and control rows survive into the next shift,
	// production fields do not.
	snapshot := &model.BaseStatusSnapshot{
		SchemaVersion: model.CurrentSchemaVersion,
		BaseID:        d.BaseID,
		Notes:         d.Notes,
		ControlPanel:  d.ControlPanel.Clone(),
		UpdatedAt:     now.UnixMilli(),
	}
	if err := s.store.SaveBaseStatus(ctx, snapshot); err != nil {
		s.logger.Error("save base snapshot after finalize", zap.Error(err))
	}
	if err := s.store.DeleteDraft(ctx, d.Key()); err != nil {
		s.logger.Error("clear draft after finalize", zap.Error(err))
	}

	s.state = nil
	s.reopenedRecordID = ""
	if err := s.cache.Clear(); err != nil {
		s.logger.Warn("clear session cache", zap.Error(err))
	}

	s.metrics.FinalizeTotal.Inc()
	s.bus.Publish(events.EventFinalized, rec.ID)
	s.logger.Info("shift finalized",
		zap.String("record", rec.ID),
		zap.String("date", rec.Date),
		zap.String("shift_slot", rec.ShiftSlotID),
		zap.Float64("performance", performance))

	return &FinalizeResult{
		RecordID:         rec.ID,
		ReplacedRecordID: replaceID,
		AvailableHours:   available,
		ProducedHours:    produced,
		Performance:      performance,
	}, nil
}

// validateDraft collects every blocking problem at once so the operator
// fixes the draft in one pass.
func (s *Session) validateDraft(d *model.ShiftDraft) []Violation {
	var violations []Violation

	if len(d.AssignedCollaborators()) == 0 {
		violations = append(violations, Violation{
			Message: "no collaborators assigned to the team",
		})
	}

	filledByCategory := make(map[string]bool)
	for _, task := range s.cfg.Catalog.Tasks {
		value, entered := d.TaskValues[task.ID]
		if entered && value != "" {
			if _, err := model.ParseTaskValue(task, value); err != nil {
				violations = append(violations, Violation{
					CategoryID: task.CategoryID,
					TaskID:     task.ID,
					TaskName:   task.Name,
					Message:    fmt.Sprintf("task %q: %v", task.Name, err),
				})
				continue
			}
			filledByCategory[task.CategoryID] = true
			continue
		}
		if task.Required {
			violations = append(violations, Violation{
				CategoryID: task.CategoryID,
				TaskID:     task.ID,
				TaskName:   task.Name,
				Message:    fmt.Sprintf("required task %q has no value", task.Name),
			})
		}
	}

	for _, cat := range s.cfg.Catalog.Categories {
		if cat.Required && !cat.RosterStyle && !filledByCategory[cat.ID] {
			violations = append(violations, Violation{
				CategoryID:   cat.ID,
				CategoryName: cat.Name,
				Message:      fmt.Sprintf("required category %q has no entries", cat.Name),
			})
		}
	}

	// Roster-style rows: a description commits the row, which then needs a
	// parsable value.
	for i, entry := range d.NonRoutine {
		if entry.Description == "" {
			continue
		}
		if entry.Value == "" {
			violations = append(violations, Violation{
				CategoryID: entry.CategoryID,
				Message:    fmt.Sprintf("non-routine row %d (%q) has no value", i+1, entry.Description),
			})
			continue
		}
		if err := validateNonRoutine(entry); err != nil {
			violations = append(violations, Violation{
				CategoryID: entry.CategoryID,
				Message:    fmt.Sprintf("non-routine row %d (%q): %v", i+1, entry.Description, err),
			})
		}
	}

	return violations
}
