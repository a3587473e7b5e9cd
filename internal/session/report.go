package session

import (
	"github.com/andreddluiz/shiftflow/internal/model"
	"github.com/andreddluiz/shiftflow/internal/rules"
)

// Report is the session status surface, serialized for the status command.
type Report struct {
	OperatorID  string            `json:"operator_id"`
	BaseID      string            `json:"base_id"`
	Date        string            `json:"date,omitempty"`
	ShiftSlotID string            `json:"shift_slot_id,omitempty"`
	Status      model.DraftStatus `json:"status,omitempty"`
	Reopened    bool              `json:"reopened,omitempty"`
	SaveState   SaveState         `json:"save_state"`

	AvailableHours float64 `json:"available_hours"`
	ProducedHours  float64 `json:"produced_hours"`
	Performance    float64 `json:"performance"`

	TeamSlots       []string            `json:"team_slots,omitempty"`
	TaskCount       int                 `json:"task_count"`
	NonRoutineCount int                 `json:"non_routine_count"`
	ControlLevels   map[rules.Level]int `json:"control_levels,omitempty"`
	Notes           string              `json:"notes,omitempty"`
}

// Status summarizes the session for the operator. It never mutates state.
func (s *Session) Status() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := Report{
		OperatorID: s.cfg.Session.OperatorID,
		BaseID:     s.cfg.Station.BaseID,
		SaveState:  s.saves.Current(),
	}
	if s.state == nil {
		return report
	}

	d := s.state.Draft()
	report.Date = d.Date
	report.ShiftSlotID = d.ShiftSlotID
	report.Status = d.Status
	report.Reopened = s.state.Reopened()
	report.TeamSlots = append([]string(nil), d.TeamSlots...)
	report.TaskCount = len(d.TaskValues)
	report.NonRoutineCount = len(d.NonRoutine)
	report.Notes = d.Notes

	report.AvailableHours = model.AvailableHours(d, s.cfg.Team)
	report.ProducedHours = model.ProducedHours(d, s.cfg.Catalog)
	report.Performance = model.Performance(report.ProducedHours, report.AvailableHours)

	report.ControlLevels = make(map[rules.Level]int)
	for _, r := range d.ControlPanel.ShelfLife {
		if r.Status != "" {
			report.ControlLevels[r.Status]++
		}
	}
	for _, r := range d.ControlPanel.StorageLocation {
		if r.Status != "" {
			report.ControlLevels[r.Status]++
		}
	}
	for _, r := range d.ControlPanel.InTransit {
		if r.Status != "" {
			report.ControlLevels[r.Status]++
		}
	}
	for _, r := range d.ControlPanel.CriticalBalance {
		if r.Status != "" {
			report.ControlLevels[r.Status]++
		}
	}
	if len(report.ControlLevels) == 0 {
		report.ControlLevels = nil
	}

	return report
}
