package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
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

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type countingStore struct {
	store.Store
	saves atomic.Int64
}

func (c *countingStore) SaveDraft(ctx context.Context, d *model.ShiftDraft) error {
	c.saves.Add(1)
	return c.Store.SaveDraft(ctx, d)
}

func testConfig() model.Config {
	return model.Config{
		Station: model.StationConfig{BaseID: "GRU", Name: "Guarulhos"},
		Session: model.SessionConfig{
			OperatorID:         "op-1",
			AutosaveDebounceMs: 20,
			PollIntervalMs:     50,
		},
		Team: model.TeamConfig{
			Slots: 3,
			Collaborators: []model.Collaborator{
				{ID: "c1", Name: "Ana", ShiftHours: 6},
				{ID: "c2", Name: "Bruno", ShiftHours: 6},
			},
		},
		Catalog: model.CatalogConfig{
			ShiftSlots: []model.ShiftSlot{{ID: "morning", Name: "Morning"}, {ID: "night", Name: "Night"}},
			Categories: []model.Category{
				{ID: "ramp", Name: "Ramp Handling", Required: true},
				{ID: "extra", Name: "Non-Routine", RosterStyle: true},
			},
			Tasks: []model.Task{
				{ID: "turnaround", CategoryID: "ramp", Name: "Turnaround", Kind: model.KindCount, UnitMinutes: 30, Required: true},
				{ID: "cleaning", CategoryID: "ramp", Name: "Cleaning", Kind: model.KindDuration},
			},
		},
	}
}

func testRules() *rules.Config {
	ten := 9.0
	return &rules.Config{
		SchemaVersion: 1,
		Families: map[string]rules.FamilyRules{
			"critical_balance": {
				Defaults: rules.ColorRuleSet{
					Green:  rules.ConditionConfig{Operator: rules.OpGreaterOrEqual, Value: 10, Enabled: true},
					Yellow: rules.ConditionConfig{Operator: rules.OpBetween, Value: 3, ValueMax: &ten, Enabled: true},
					Red:    rules.ConditionConfig{Operator: rules.OpLess, Value: 3, Enabled: true},
				},
				Popups: rules.PopupSet{
					Red: rules.PopupConfig{
						Title:           "Critical balance",
						MessageTemplate: "Stock down to {value} units",
						Enabled:         true,
					},
				},
			},
		},
	}
}

type harness struct {
	session *Session
	store   *countingStore
	history *history.MemStore
	cache   *sessioncache.Memory
	bus     *events.Bus
	clock   *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   &countingStore{Store: store.NewMemStore()},
		history: history.NewMemStore(),
		cache:   sessioncache.NewMemory(),
		bus:     events.NewBus(16),
		clock:   newTestClock(),
	}
	h.session = New(Deps{
		Config:   testConfig(),
		Rules:    testRules(),
		Store:    h.store,
		History:  h.history,
		Cache:    h.cache,
		Bus:      h.bus,
		Metrics:  metrics.New(),
		Notifier: notify.Silent{},
		Logger:   zap.NewNop(),
		Now:      h.clock.Now,
	})
	t.Cleanup(func() {
		h.session.Close()
		h.bus.Close()
	})
	return h
}

func (h *harness) key() model.DraftKey {
	return model.DraftKey{BaseID: "GRU", Date: "2026-09-01", ShiftSlotID: "morning"}
}

func (h *harness) selectMorning(t *testing.T) {
	t.Helper()
	require.NoError(t, h.session.Select(context.Background(), "2026-09-01", "morning"))
}

func TestSession_SelectCreatesDraft(t *testing.T) {
	h := newHarness(t)
	h.selectMorning(t)

	draft, err := h.store.GetDraft(context.Background(), h.key())
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, model.DraftStatusDraft, draft.Status)
	assert.Len(t, draft.TeamSlots, 3)

	sel, err := h.cache.Load()
	require.NoError(t, err)
	require.NotNil(t, sel)
	assert.Equal(t, "morning", sel.ShiftSlotID)
}

func TestSession_SelectCarriesOverBaseSnapshot(t *testing.T) {
	h := newHarness(t)
	snapshot := &model.BaseStatusSnapshot{
		SchemaVersion: model.CurrentSchemaVersion,
		BaseID:        "GRU",
		Notes:         "handover: fuel truck broken",
		ControlPanel: model.ControlPanel{
			CriticalBalance: []model.CriticalBalanceRow{{ID: "p1", Name: "Brake pads", Quantity: 2}},
		},
	}
	require.NoError(t, h.store.SaveBaseStatus(context.Background(), snapshot))

	h.selectMorning(t)

	report := h.session.Status()
	assert.Equal(t, "handover: fuel truck broken", report.Notes)

	draft, err := h.store.GetDraft(context.Background(), h.key())
	require.NoError(t, err)
	require.Len(t, draft.ControlPanel.CriticalBalance, 1)
	assert.Equal(t, "Brake pads", draft.ControlPanel.CriticalBalance[0].Name)
}

func TestSession_SelectValidatesInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Error(t, h.session.Select(ctx, "2026-09-01", "bogus-slot"))
	assert.Error(t, h.session.Select(ctx, "not-a-date", "morning"))
}

func TestSession_SelectFinalizedPeriodRejected(t *testing.T) {
	h := newHarness(t)
	rec := &history.Record{
		ID: "r1", BaseID: "GRU", Date: "2026-09-01", ShiftSlotID: "morning",
		Payload: model.NewShiftDraft(h.key(), 3),
	}
	require.NoError(t, h.history.Commit(context.Background(), rec, ""))

	err := h.session.Select(context.Background(), "2026-09-01", "morning")
	var dup *DuplicatePeriodError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "r1", dup.RecordID)
}

func TestSession_EditsDebounceToOneAutosave(t *testing.T) {
	h := newHarness(t)
	h.selectMorning(t)
	saved := h.store.saves.Load() // the create from Select

	require.NoError(t, h.session.Assign(0, "c1"))
	require.NoError(t, h.session.SetTask("turnaround", "2"))
	require.NoError(t, h.session.SetNotes("busy morning"))

	require.Eventually(t, func() bool {
		return h.store.saves.Load() == saved+1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, saved+1, h.store.saves.Load(), "one burst, one save")
	assert.Equal(t, SaveSaved, h.session.SaveState())

	draft, err := h.store.GetDraft(context.Background(), h.key())
	require.NoError(t, err)
	assert.Equal(t, "c1", draft.TeamSlots[0])
	assert.Equal(t, "2", draft.TaskValues["turnaround"])
	assert.Equal(t, "busy morning", draft.Notes)
}

func TestSession_AutosaveWritesBaseSnapshot(t *testing.T) {
	h := newHarness(t)
	h.selectMorning(t)
	ctx := context.Background()

	require.NoError(t, h.session.SetNotes("handover: gate 12 belt loader down"))
	_, err := h.session.UpsertControlRow(ControlRowInput{
		Family: model.FamilyCriticalBalance, Name: "Brake pads", Quantity: 12,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.session.SaveState() == SaveSaved
	}, 2*time.Second, 10*time.Millisecond)

	// Notes and control rows reach the shared snapshot on every flush, not
	// only on finalize, so a never-finalized shift still hands them over.
	snapshot, err := h.store.GetBaseStatus(ctx, "GRU")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "handover: gate 12 belt loader down", snapshot.Notes)
	require.Len(t, snapshot.ControlPanel.CriticalBalance, 1)
	assert.Equal(t, "Brake pads", snapshot.ControlPanel.CriticalBalance[0].Name)
}

func TestSession_SelectFlushesPendingEdits(t *testing.T) {
	h := newHarness(t)
	h.selectMorning(t)
	ctx := context.Background()

	require.NoError(t, h.session.SetNotes("pending handover note"))

	// Switch periods while the edit is still inside the debounce window.
	require.NoError(t, h.session.Select(ctx, "2026-09-01", "night"))

	morning, err := h.store.GetDraft(ctx, h.key())
	require.NoError(t, err)
	require.NotNil(t, morning)
	assert.Equal(t, "pending handover note", morning.Notes)

	// The flushed snapshot carries into the freshly selected period.
	assert.Equal(t, "pending handover note", h.session.Status().Notes)
}

func TestSession_EditValidation(t *testing.T) {
	h := newHarness(t)
	h.selectMorning(t)

	assert.Error(t, h.session.Assign(0, "ghost"), "unknown collaborator")
	assert.Error(t, h.session.SetTask("ghost-task", "1"), "unknown task")
	assert.Error(t, h.session.SetTask("cleaning", "1:99"), "unparsable duration")

	require.NoError(t, h.session.Assign(0, "c1"))
	err := h.session.Assign(1, "c1")
	var dup *DuplicateCollaboratorError
	assert.ErrorAs(t, err, &dup)
}

func TestSession_OpsRequireSelection(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.session.Assign(0, "c1"), ErrNoSelection)
	assert.ErrorIs(t, h.session.SetTask("turnaround", "1"), ErrNoSelection)
	assert.ErrorIs(t, h.session.SetNotes("x"), ErrNoSelection)
	_, err := h.session.Finalize(context.Background(), FinalizeOptions{})
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestSession_PollAppliesNewerRemote(t *testing.T) {
	h := newHarness(t)
	h.selectMorning(t)
	ctx := context.Background()

	local := h.session.Status()
	require.Equal(t, "morning", local.ShiftSlotID)

	remote, err := h.store.GetDraft(ctx, h.key())
	require.NoError(t, err)
	remote.Notes = "written by the other operator"
	remote.UpdatedAt = h.clock.Now().UnixMilli() + 10_000
	require.NoError(t, h.store.SaveDraft(ctx, remote))

	h.session.PollOnce(ctx)

	assert.Equal(t, "written by the other operator", h.session.Status().Notes)
}

func TestSession_PollDiscardsStaleRemote(t *testing.T) {
	h := newHarness(t)
	h.selectMorning(t)
	ctx := context.Background()

	require.NoError(t, h.session.SetNotes("local truth"))

	remote, err := h.store.GetDraft(ctx, h.key())
	require.NoError(t, err)
	remote.Notes = "stale"
	remote.UpdatedAt = 1 // far in the past
	require.NoError(t, h.store.SaveDraft(ctx, remote))

	h.session.PollOnce(ctx)

	assert.Equal(t, "local truth", h.session.Status().Notes)
}

func TestSession_PollTieChangesNothing(t *testing.T) {
	h := newHarness(t)
	h.selectMorning(t)
	ctx := context.Background()

	// Both documents carry the same timestamp: repeated polls must neither
	// apply nor write, so two idle sessions converge without churn.
	local := h.session.Status()
	saves := h.store.saves.Load()

	h.session.PollOnce(ctx)
	h.session.PollOnce(ctx)

	assert.Equal(t, local.Notes, h.session.Status().Notes)
	assert.Equal(t, saves, h.store.saves.Load())
}

func TestSession_PollClearsStateWhenFinalizedElsewhere(t *testing.T) {
	h := newHarness(t)
	h.selectMorning(t)
	ctx := context.Background()

	// Simulate the other operator finalizing: the draft disappears and a
	// history record exists.
	require.NoError(t, h.store.DeleteDraft(ctx, h.key()))
	rec := &history.Record{
		ID: "r-other", BaseID: "GRU", Date: "2026-09-01", ShiftSlotID: "morning",
		Payload: model.NewShiftDraft(h.key(), 3),
	}
	require.NoError(t, h.history.Commit(ctx, rec, ""))

	h.session.PollOnce(ctx)

	report := h.session.Status()
	assert.Empty(t, report.Date, "selection cleared")

	sel, err := h.cache.Load()
	require.NoError(t, err)
	assert.Nil(t, sel)
}

func fillValidDraft(t *testing.T, h *harness) {
	t.Helper()
	require.NoError(t, h.session.Assign(0, "c1"))
	require.NoError(t, h.session.Assign(1, "c2"))
	require.NoError(t, h.session.SetTask("turnaround", "8")) // 8 × 30min = 4h
	require.NoError(t, h.session.SetTask("cleaning", "2:00"))
	require.NoError(t, h.session.SetNotes("handover: check lift 3"))
	_, err := h.session.UpsertControlRow(ControlRowInput{
		Family: model.FamilyCriticalBalance, Name: "Brake pads", Quantity: 12,
	})
	require.NoError(t, err)
}

func TestSession_Finalize_CommitsAndResetsAsymmetrically(t *testing.T) {
	h := newHarness(t)
	h.selectMorning(t)
	ctx := context.Background()
	fillValidDraft(t, h)

	result, err := h.session.Finalize(ctx, FinalizeOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 12, result.AvailableHours, 1e-9)
	assert.InDelta(t, 6, result.ProducedHours, 1e-9)
	assert.InDelta(t, 50, result.Performance, 1e-9)

	rec, err := h.history.Get(ctx, h.key())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, result.RecordID, rec.ID)
	assert.Equal(t, "op-1", rec.OperatorID)
	assert.Len(t, rec.Collaborators, 2)
	assert.Equal(t, model.DraftStatusFinalized, rec.Payload.Status)

	// Production fields are gone: the live draft is cleared.
	draft, err := h.store.GetDraft(ctx, h.key())
	require.NoError(t, err)
	assert.Nil(t, draft)
	assert.Empty(t, h.session.Status().Date)

	// Notes and control rows survive through the base snapshot.
	snapshot, err := h.store.GetBaseStatus(ctx, "GRU")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "handover: check lift 3", snapshot.Notes)
	require.Len(t, snapshot.ControlPanel.CriticalBalance, 1)
	assert.Equal(t, "Brake pads", snapshot.ControlPanel.CriticalBalance[0].Name)

	// The next shift picks the carryover up.
	require.NoError(t, h.session.Select(ctx, "2026-09-01", "night"))
	report := h.session.Status()
	assert.Equal(t, "handover: check lift 3", report.Notes)
	assert.Zero(t, report.TaskCount, "production fields start empty")
	assert.Zero(t, countAssigned(report.TeamSlots), "team starts empty")
}

func countAssigned(slots []string) int {
	n := 0
	for _, s := range slots {
		if s != "" {
			n++
		}
	}
	return n
}

func TestSession_Finalize_CollectsAllViolations(t *testing.T) {
	h := newHarness(t)
	h.selectMorning(t)

	// Roster-style row with a description but no value.
	require.NoError(t, h.session.AddNonRoutine(model.NonRoutineEntry{
		Description: "engine wash", CategoryID: "extra", Kind: model.KindDuration,
	}))

	_, err := h.session.Finalize(context.Background(), FinalizeOptions{})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	messages := make([]string, len(vErr.Violations))
	for i, v := range vErr.Violations {
		messages[i] = v.Message
	}
	assert.Contains(t, messages, "no collaborators assigned to the team")
	assert.Contains(t, messages, `required task "Turnaround" has no value`)
	assert.Contains(t, messages, `non-routine row 1 ("engine wash") has no value`)

	// The draft stays editable after a failed validation.
	assert.NoError(t, h.session.SetNotes("still editing"))
}

func TestSession_Finalize_ConfirmRequiredForDuplicateCollaborator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Ana already worked the night shift of the same date.
	night := model.NewShiftDraft(model.DraftKey{BaseID: "GRU", Date: "2026-09-01", ShiftSlotID: "night"}, 3)
	require.NoError(t, h.history.Commit(ctx, &history.Record{
		ID: "r-night", BaseID: "GRU", Date: "2026-09-01", ShiftSlotID: "night",
		Collaborators: []history.Collaborator{{ID: "c1", Name: "Ana"}},
		Payload:       night,
	}, ""))

	h.selectMorning(t)
	fillValidDraft(t, h)

	_, err := h.session.Finalize(ctx, FinalizeOptions{})
	var confirmErr *ConfirmRequiredError
	require.ErrorAs(t, err, &confirmErr)
	assert.Contains(t, confirmErr.Conflicts.DuplicateCollaboratorNames, "Ana")

	// The draft reverts to editable while the operator decides.
	assert.Equal(t, model.DraftStatusDraft, h.session.Status().Status)

	result, err := h.session.Finalize(ctx, FinalizeOptions{Confirm: true})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RecordID)
}

func TestSession_ReopenEditFinalizeReplacesRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.selectMorning(t)
	fillValidDraft(t, h)

	first, err := h.session.Finalize(ctx, FinalizeOptions{})
	require.NoError(t, err)

	require.NoError(t, h.session.Reopen(ctx, "2026-09-01", "morning"))
	report := h.session.Status()
	assert.True(t, report.Reopened)
	assert.Equal(t, model.DraftStatusDraft, report.Status)

	require.NoError(t, h.session.SetTask("turnaround", "10"))
	second, err := h.session.Finalize(ctx, FinalizeOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, first.RecordID, second.RecordID)

	rec, err := h.history.Get(ctx, h.key())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, second.RecordID, rec.ID)
	assert.Equal(t, "10", rec.Payload.TaskValues["turnaround"])
}

func TestSession_ControlRowAlerts(t *testing.T) {
	h := newHarness(t)
	h.selectMorning(t)

	alert, err := h.session.UpsertControlRow(ControlRowInput{
		Family: model.FamilyCriticalBalance, ID: "p1", Name: "Brake pads", Quantity: 2,
	})
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, rules.LevelRed, alert.Level)
	assert.Equal(t, "Stock down to 2 units", alert.Message)

	// Back above threshold: green tier, whose popup is disabled.
	alert, err = h.session.UpsertControlRow(ControlRowInput{
		Family: model.FamilyCriticalBalance, ID: "p1", Name: "Brake pads", Quantity: 12,
	})
	require.NoError(t, err)
	assert.Nil(t, alert)

	report := h.session.Status()
	assert.Equal(t, 1, report.ControlLevels[rules.LevelGreen])

	require.NoError(t, h.session.RemoveControlRow(model.FamilyCriticalBalance, "p1"))
	assert.Nil(t, h.session.Status().ControlLevels)
}

func TestSession_RestoreReselectsCachedPeriod(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.cache.Save(sessioncache.Selection{Date: "2026-09-01", ShiftSlotID: "morning"}))

	require.NoError(t, h.session.Restore(context.Background()))

	report := h.session.Status()
	assert.Equal(t, "2026-09-01", report.Date)
	assert.Equal(t, "morning", report.ShiftSlotID)
}
