package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andreddluiz/shiftflow/internal/events"
	"github.com/andreddluiz/shiftflow/internal/history"
	"github.com/andreddluiz/shiftflow/internal/metrics"
	"github.com/andreddluiz/shiftflow/internal/model"
	"github.com/andreddluiz/shiftflow/internal/notify"
	"github.com/andreddluiz/shiftflow/internal/rules"
	"github.com/andreddluiz/shiftflow/internal/sessioncache"
	"github.com/andreddluiz/shiftflow/internal/store"
)

const persistTimeout = 10 * time.Second

// DuplicatePeriodError reports a select of a period that already has a
// finalized record in history.
type DuplicatePeriodError struct {
	RecordID    string
	Date        string
	ShiftSlotID string
}

func (e *DuplicatePeriodError) Error() string {
	return fmt.Sprintf("shift %s/%s is already finalized (record %s); reopen it to edit", e.Date, e.ShiftSlotID, e.RecordID)
}

// Deps bundles everything a Session needs.
type Deps struct {
	Config   model.Config
	Rules    *rules.Config
	Store    store.Store
	History  history.Store
	Cache    sessioncache.Cache
	Bus      *events.Bus
	Metrics  *metrics.Metrics
	Notifier notify.Notifier
	Logger   *zap.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Session is one operator's editing session over the shared store. All
// operations serialize on one mutex; the session model is single-threaded
// by construction.
type Session struct {
	mu       sync.Mutex
	cfg      model.Config
	rules    *rules.Config
	store    store.Store
	history  history.Store
	cache    sessioncache.Cache
	bus      *events.Bus
	metrics  *metrics.Metrics
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time

	state    *EditState
	autosave *Scheduler
	saves    *Tracker
	// reopenedRecordID is set while editing a reopened finalized shift; the
	// next finalize replaces that record.
	reopenedRecordID string
}

func New(deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Session{
		cfg:      deps.Config,
		rules:    deps.Rules,
		store:    deps.Store,
		history:  deps.History,
		cache:    deps.Cache,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	debounce := time.Duration(deps.Config.Session.AutosaveDebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	s.autosave = NewScheduler(debounce, s.flushAutosave)
	s.saves = NewTracker(deps.Bus)
	return s
}

// Restore re-selects the period cached by a previous session run.
func (s *Session) Restore(ctx context.Context) error {
	sel, err := s.cache.Load()
	if err != nil || sel == nil || !sel.Complete() {
		return err
	}
	if err := s.Select(ctx, sel.Date, sel.ShiftSlotID); err != nil {
		s.logger.Warn("cached selection no longer selectable", zap.Error(err))
		return s.cache.Clear()
	}
	return nil
}

// Select makes a period the active editing target, creating its draft if no
// session has touched it yet. A brand-new draft inherits notes and
// control-panel rows from the base snapshot.
func (s *Session) Select(ctx context.Context, date, shiftSlotID string) error {
	// An edit still inside the debounce window must land before the state
	// swap, or it would be silently lost.
	s.autosave.Flush()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cfg.Catalog.ShiftSlotByID(shiftSlotID); !ok {
		return fmt.Errorf("unknown shift slot %q", shiftSlotID)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", date)
	}

	key := model.DraftKey{BaseID: s.cfg.Station.BaseID, Date: date, ShiftSlotID: shiftSlotID}

	rec, err := s.history.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("check history: %w", err)
	}
	if rec != nil {
		return &DuplicatePeriodError{RecordID: rec.ID, Date: date, ShiftSlotID: shiftSlotID}
	}

	draft, err := s.store.GetDraft(ctx, key)
	if err != nil {
		return fmt.Errorf("load draft: %w", err)
	}
	if draft == nil {
		draft = model.NewShiftDraft(key, s.cfg.Team.Slots)
		if snapshot, err := s.store.GetBaseStatus(ctx, key.BaseID); err == nil && snapshot != nil {
			draft.Notes = snapshot.Notes
			draft.ControlPanel = snapshot.ControlPanel.Clone()
		}
		draft.UpdatedAt = s.now().UnixMilli()
		if err := s.store.SaveDraft(ctx, draft); err != nil {
			return fmt.Errorf("create draft: %w", err)
		}
	}

	s.state = NewEditState(draft)
	s.reopenedRecordID = ""
	s.refreshControlStatuses()

	if err := s.cache.Save(sessioncache.Selection{Date: date, ShiftSlotID: shiftSlotID}); err != nil {
		s.logger.Warn("save session cache", zap.Error(err))
	}

	s.logger.Info("period selected",
		zap.String("date", date),
		zap.String("shift_slot", shiftSlotID))
	return nil
}

// Reopen restores a finalized shift from history for editing. The next
// finalize replaces the original record.
func (s *Session) Reopen(ctx context.Context, date, shiftSlotID string) error {
	s.autosave.Flush()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := model.DraftKey{BaseID: s.cfg.Station.BaseID, Date: date, ShiftSlotID: shiftSlotID}
	rec, err := s.history.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no finalized record for %s/%s", date, shiftSlotID)
	}

	draft := rec.Payload.Clone()
	if err := model.ValidateDraftTransition(draft.Status, model.DraftStatusDraft); err != nil {
		return err
	}
	draft.Status = model.DraftStatusDraft
	draft.UpdatedAt = s.now().UnixMilli()

	if err := s.store.SaveDraft(ctx, draft); err != nil {
		return fmt.Errorf("restore draft: %w", err)
	}

	s.state = NewEditState(draft)
	s.state.SetReopened(true)
	s.reopenedRecordID = rec.ID
	s.refreshControlStatuses()

	if err := s.cache.Save(sessioncache.Selection{Date: date, ShiftSlotID: shiftSlotID}); err != nil {
		s.logger.Warn("save session cache", zap.Error(err))
	}

	s.logger.Info("finalized shift reopened",
		zap.String("date", date),
		zap.String("shift_slot", shiftSlotID),
		zap.String("record", rec.ID))
	return nil
}

// Assign places a collaborator in a team slot; an empty ID clears it.
func (s *Session) Assign(slot int, collaboratorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return ErrNoSelection
	}
	if collaboratorID != "" {
		if _, ok := s.cfg.Team.CollaboratorByID(collaboratorID); !ok {
			return fmt.Errorf("unknown collaborator %q", collaboratorID)
		}
	}
	if err := s.state.AssignSlot(slot, collaboratorID, s.now()); err != nil {
		return err
	}
	s.autosave.Schedule()
	return nil
}

// SetTask records a task value, validating it against the task's
// measurement kind. An empty value clears the entry.
func (s *Session) SetTask(taskID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return ErrNoSelection
	}
	task, ok := s.cfg.Catalog.TaskByID(taskID)
	if !ok {
		return fmt.Errorf("unknown task %q", taskID)
	}
	if value != "" {
		if _, err := model.ParseTaskValue(task, value); err != nil {
			return err
		}
	}
	if err := s.state.SetTaskValue(taskID, value, s.now()); err != nil {
		return err
	}
	s.autosave.Schedule()
	return nil
}

// SetNotes replaces the shift notes.
func (s *Session) SetNotes(notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return ErrNoSelection
	}
	if err := s.state.SetNotes(notes, s.now()); err != nil {
		return err
	}
	s.autosave.Schedule()
	return nil
}

// AddNonRoutine appends a free-form production row.
func (s *Session) AddNonRoutine(entry model.NonRoutineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return ErrNoSelection
	}
	if err := validateNonRoutine(entry); err != nil {
		return err
	}
	if err := s.state.AddNonRoutine(entry, s.now()); err != nil {
		return err
	}
	s.autosave.Schedule()
	return nil
}

// UpdateNonRoutine replaces the row at index.
func (s *Session) UpdateNonRoutine(index int, entry model.NonRoutineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return ErrNoSelection
	}
	if err := validateNonRoutine(entry); err != nil {
		return err
	}
	if err := s.state.UpdateNonRoutine(index, entry, s.now()); err != nil {
		return err
	}
	s.autosave.Schedule()
	return nil
}

// RemoveNonRoutine deletes the row at index.
func (s *Session) RemoveNonRoutine(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return ErrNoSelection
	}
	if err := s.state.RemoveNonRoutine(index, s.now()); err != nil {
		return err
	}
	s.autosave.Schedule()
	return nil
}

func validateNonRoutine(entry model.NonRoutineEntry) error {
	switch entry.Kind {
	case model.KindDuration:
		if entry.Value != "" {
			if _, err := model.ParseHours(entry.Value); err != nil {
				return err
			}
		}
	case model.KindCount:
		if entry.Value != "" {
			if _, err := model.ParseCount(entry.Value); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown measurement kind %q", entry.Kind)
	}
	return nil
}

// Flush persists any pending edit immediately.
func (s *Session) Flush() {
	s.autosave.Flush()
}

// Close flushes pending edits and stops the autosave timer.
func (s *Session) Close() {
	s.autosave.Flush()
	s.autosave.Stop()
}

// flushAutosave is the scheduler's persist callback. A persist is a pair of
// writes: the draft, then the base snapshot carrying notes and control rows
// into the next shift. The pair is not atomic; the snapshot is advisory
// carryover and the next flush repairs a torn pair.
func (s *Session) flushAutosave() {
	s.mu.Lock()
	if s.state == nil || !s.state.Dirty() {
		s.mu.Unlock()
		return
	}
	snapshot := s.state.Snapshot()
	s.mu.Unlock()

	s.saves.Set(SaveSaving)
	s.metrics.AutosaveTotal.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.store.SaveDraft(ctx, snapshot); err != nil {
		s.metrics.AutosaveFailures.Inc()
		s.saves.Set(SaveFailed)
		s.logger.Error("autosave failed", zap.Error(err))
		return
	}

	base := &model.BaseStatusSnapshot{
		SchemaVersion: model.CurrentSchemaVersion,
		BaseID:        snapshot.BaseID,
		Notes:         snapshot.Notes,
		ControlPanel:  snapshot.ControlPanel,
		UpdatedAt:     snapshot.UpdatedAt,
	}
	if err := s.store.SaveBaseStatus(ctx, base); err != nil {
		s.metrics.AutosaveFailures.Inc()
		s.saves.Set(SaveFailed)
		s.logger.Error("autosave base snapshot failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	// Only clear dirty if no edit arrived while we were writing.
	if s.state != nil && s.state.Draft().UpdatedAt == snapshot.UpdatedAt {
		s.state.ClearDirty()
	}
	s.mu.Unlock()

	s.saves.Set(SaveSaved)
}

// PollOnce reconciles local state with the store. A remote draft strictly
// newer than the local one replaces it wholesale; anything else is
// discarded. Ties change nothing, so two idle sessions converge without
// write churn.
func (s *Session) PollOnce(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return
	}

	local := s.state.Draft()
	remote, err := s.store.GetDraft(ctx, local.Key())
	if err != nil {
		s.logger.Warn("poll store", zap.Error(err))
		return
	}
	if remote == nil {
		// Another session finalized this period; the draft is gone.
		if rec, err := s.history.Get(ctx, local.Key()); err == nil && rec != nil {
			s.logger.Info("period finalized elsewhere; clearing local state")
			s.state = nil
			s.reopenedRecordID = ""
			if err := s.cache.Clear(); err != nil {
				s.logger.Warn("clear session cache", zap.Error(err))
			}
		}
		return
	}

	if remote.UpdatedAt <= local.UpdatedAt {
		if remote.UpdatedAt < local.UpdatedAt {
			s.metrics.SyncDiscarded.Inc()
		}
		return
	}

	s.state.Replace(remote)
	s.refreshControlStatuses()
	s.metrics.SyncApplied.Inc()
	s.bus.Publish(events.EventDraftApplied, remote.Key())
	s.logger.Debug("remote draft applied",
		zap.Int64("updated_at", remote.UpdatedAt))
}

// SaveState returns the current save indicator.
func (s *Session) SaveState() SaveState {
	return s.saves.Current()
}

// newRecordID returns a fresh history record identifier.
func newRecordID() string {
	return uuid.NewString()
}
