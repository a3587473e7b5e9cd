// Package model defines the shift draft document, the per-base status
// snapshot, and the configuration types shared by the session and CLI.
package model

import (
	"fmt"
	"time"

	"github.com/andreddluiz/shiftflow/internal/rules"
)

// CurrentSchemaVersion is written into every new document.
const CurrentSchemaVersion = 1

// DraftKey identifies one shift draft: a base, a calendar date, and a shift
// slot within that date.
type DraftKey struct {
	BaseID      string `yaml:"base_id"`
	Date        string `yaml:"date"` // 2006-01-02
	ShiftSlotID string `yaml:"shift_slot_id"`
}

// Complete reports whether all three components are set.
func (k DraftKey) Complete() bool {
	return k.BaseID != "" && k.Date != "" && k.ShiftSlotID != ""
}

func (k DraftKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.BaseID, k.Date, k.ShiftSlotID)
}

// MeasurementKind distinguishes how an entered task value is interpreted.
type MeasurementKind string

const (
	// KindDuration values are entered as "HH:MM" or decimal hours.
	KindDuration MeasurementKind = "duration"
	// KindCount values are unit counts converted to hours via UnitMinutes.
	KindCount MeasurementKind = "count"
)

// NonRoutineEntry is one free-form production row outside the task catalog.
type NonRoutineEntry struct {
	Description string          `yaml:"description"`
	CategoryID  string          `yaml:"category_id,omitempty"`
	Kind        MeasurementKind `yaml:"kind"`
	Value       string          `yaml:"value"`
	UnitMinutes float64         `yaml:"unit_minutes,omitempty"`
}

// ControlFamily names one of the four monitored control-panel sections.
type ControlFamily string

const (
	FamilyShelfLife       ControlFamily = "shelf_life"
	FamilyStorageLocation ControlFamily = "storage_location"
	FamilyInTransit       ControlFamily = "in_transit"
	FamilyCriticalBalance ControlFamily = "critical_balance"
)

// ShelfLifeRow tracks a perishable item; the monitored value is the number
// of days until expiry.
type ShelfLifeRow struct {
	ID           string              `yaml:"id"`
	Name         string              `yaml:"name"`
	LotNumber    string              `yaml:"lot_number,omitempty"`
	ExpiresAt    string              `yaml:"expires_at,omitempty"` // 2006-01-02
	Quantity     float64             `yaml:"quantity"`
	Status       rules.Level         `yaml:"status,omitempty"`
	RuleOverride *rules.ColorRuleSet `yaml:"rule_override,omitempty"`
}

// MonitoredValue returns days to expiry, fractional. False when no expiry
// date is set or it does not parse.
func (r ShelfLifeRow) MonitoredValue(now time.Time) (float64, bool) {
	if r.ExpiresAt == "" {
		return 0, false
	}
	expires, err := time.Parse("2006-01-02", r.ExpiresAt)
	if err != nil {
		return 0, false
	}
	return expires.Sub(now).Hours() / 24, true
}

// StorageLocationRow tracks stock held at a named location.
type StorageLocationRow struct {
	ID           string              `yaml:"id"`
	Name         string              `yaml:"name"`
	Location     string              `yaml:"location"`
	Quantity     float64             `yaml:"quantity"`
	Status       rules.Level         `yaml:"status,omitempty"`
	RuleOverride *rules.ColorRuleSet `yaml:"rule_override,omitempty"`
}

func (r StorageLocationRow) MonitoredValue(time.Time) (float64, bool) {
	return r.Quantity, true
}

// InTransitRow tracks material moving between bases.
type InTransitRow struct {
	ID           string              `yaml:"id"`
	Name         string              `yaml:"name"`
	Origin       string              `yaml:"origin,omitempty"`
	Destination  string              `yaml:"destination,omitempty"`
	Quantity     float64             `yaml:"quantity"`
	Status       rules.Level         `yaml:"status,omitempty"`
	RuleOverride *rules.ColorRuleSet `yaml:"rule_override,omitempty"`
}

func (r InTransitRow) MonitoredValue(time.Time) (float64, bool) {
	return r.Quantity, true
}

// CriticalBalanceRow tracks an item whose stock level must not fall below
// operational minimums.
type CriticalBalanceRow struct {
	ID           string              `yaml:"id"`
	Name         string              `yaml:"name"`
	PartNumber   string              `yaml:"part_number,omitempty"`
	Quantity     float64             `yaml:"quantity"`
	Status       rules.Level         `yaml:"status,omitempty"`
	RuleOverride *rules.ColorRuleSet `yaml:"rule_override,omitempty"`
}

func (r CriticalBalanceRow) MonitoredValue(time.Time) (float64, bool) {
	return r.Quantity, true
}

// ControlPanel groups the four monitored row families. It survives finalize:
// rows carry over to the next shift via the base snapshot.
type ControlPanel struct {
	ShelfLife       []ShelfLifeRow       `yaml:"shelf_life,omitempty"`
	StorageLocation []StorageLocationRow `yaml:"storage_location,omitempty"`
	InTransit       []InTransitRow       `yaml:"in_transit,omitempty"`
	CriticalBalance []CriticalBalanceRow `yaml:"critical_balance,omitempty"`
}

func cloneRuleSet(rs *rules.ColorRuleSet) *rules.ColorRuleSet {
	if rs == nil {
		return nil
	}
	clone := *rs
	if rs.Green.ValueMax != nil {
		v := *rs.Green.ValueMax
		clone.Green.ValueMax = &v
	}
	if rs.Yellow.ValueMax != nil {
		v := *rs.Yellow.ValueMax
		clone.Yellow.ValueMax = &v
	}
	if rs.Red.ValueMax != nil {
		v := *rs.Red.ValueMax
		clone.Red.ValueMax = &v
	}
	return &clone
}

// Clone deep-copies the panel, including rule overrides.
func (p ControlPanel) Clone() ControlPanel {
	out := ControlPanel{}
	if p.ShelfLife != nil {
		out.ShelfLife = make([]ShelfLifeRow, len(p.ShelfLife))
		for i, r := range p.ShelfLife {
			r.RuleOverride = cloneRuleSet(r.RuleOverride)
			out.ShelfLife[i] = r
		}
	}
	if p.StorageLocation != nil {
		out.StorageLocation = make([]StorageLocationRow, len(p.StorageLocation))
		for i, r := range p.StorageLocation {
			r.RuleOverride = cloneRuleSet(r.RuleOverride)
			out.StorageLocation[i] = r
		}
	}
	if p.InTransit != nil {
		out.InTransit = make([]InTransitRow, len(p.InTransit))
		for i, r := range p.InTransit {
			r.RuleOverride = cloneRuleSet(r.RuleOverride)
			out.InTransit[i] = r
		}
	}
	if p.CriticalBalance != nil {
		out.CriticalBalance = make([]CriticalBalanceRow, len(p.CriticalBalance))
		for i, r := range p.CriticalBalance {
			r.RuleOverride = cloneRuleSet(r.RuleOverride)
			out.CriticalBalance[i] = r
		}
	}
	return out
}

// ShiftDraft is the whole-document unit of synchronization. Every session
// editing the same period reads and writes this one document; the newest
// UpdatedAt wins.
type ShiftDraft struct {
	SchemaVersion int    `yaml:"schema_version"`
	BaseID        string `yaml:"base_id"`
	Date          string `yaml:"date"`
	ShiftSlotID   string `yaml:"shift_slot_id"`

	// TeamSlots holds one collaborator ID per roster position; "" = unset.
	TeamSlots []string `yaml:"team_slots"`
	// TaskValues maps catalog task ID to the entered raw value.
	TaskValues map[string]string `yaml:"task_values"`
	NonRoutine []NonRoutineEntry `yaml:"non_routine,omitempty"`

	ControlPanel ControlPanel `yaml:"control_panel"`
	Notes        string       `yaml:"notes,omitempty"`

	Status DraftStatus `yaml:"status"`
	// UpdatedAt is Unix milliseconds of the last mutation; the sync
	// tie-breaker across sessions.
	UpdatedAt int64 `yaml:"updated_at"`
}

// NewShiftDraft creates an empty draft for the period with the configured
// number of team slots.
func NewShiftDraft(key DraftKey, teamSlots int) *ShiftDraft {
	return &ShiftDraft{
		SchemaVersion: CurrentSchemaVersion,
		BaseID:        key.BaseID,
		Date:          key.Date,
		ShiftSlotID:   key.ShiftSlotID,
		TeamSlots:     make([]string, teamSlots),
		TaskValues:    make(map[string]string),
		Status:        DraftStatusDraft,
	}
}

// Key returns the period identity of the draft.
func (d *ShiftDraft) Key() DraftKey {
	return DraftKey{BaseID: d.BaseID, Date: d.Date, ShiftSlotID: d.ShiftSlotID}
}

// Clone deep-copies the draft.
func (d *ShiftDraft) Clone() *ShiftDraft {
	out := *d
	out.TeamSlots = append([]string(nil), d.TeamSlots...)
	out.TaskValues = make(map[string]string, len(d.TaskValues))
	for k, v := range d.TaskValues {
		out.TaskValues[k] = v
	}
	out.NonRoutine = append([]NonRoutineEntry(nil), d.NonRoutine...)
	out.ControlPanel = d.ControlPanel.Clone()
	return &out
}

// AssignedCollaborators returns the non-empty team slot assignments in
// slot order.
func (d *ShiftDraft) AssignedCollaborators() []string {
	var out []string
	for _, id := range d.TeamSlots {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// BaseStatusSnapshot is the per-base document that survives finalize: notes
// and control-panel rows carry over into the next shift while production
// fields reset.
type BaseStatusSnapshot struct {
	SchemaVersion int          `yaml:"schema_version"`
	BaseID        string       `yaml:"base_id"`
	Notes         string       `yaml:"notes,omitempty"`
	ControlPanel  ControlPanel `yaml:"control_panel"`
	UpdatedAt     int64        `yaml:"updated_at"`
}

// Clone deep-copies the snapshot.
func (s *BaseStatusSnapshot) Clone() *BaseStatusSnapshot {
	out := *s
	out.ControlPanel = s.ControlPanel.Clone()
	return &out
}
