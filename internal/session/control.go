package session

import (
	"fmt"

	"github.com/andreddluiz/shiftflow/internal/events"
	"github.com/andreddluiz/shiftflow/internal/model"
	"github.com/andreddluiz/shiftflow/internal/rules"
	"go.uber.org/zap"
)

// ControlRowInput carries one control-panel row edit. Fields outside the
// target family are ignored. An empty ID creates a new row.
type ControlRowInput struct {
	Family      model.ControlFamily `json:"family"`
	ID          string              `json:"id,omitempty"`
	Name        string              `json:"name"`
	Quantity    float64             `json:"quantity"`
	LotNumber   string              `json:"lot_number,omitempty"`
	ExpiresAt   string              `json:"expires_at,omitempty"`
	Location    string              `json:"location,omitempty"`
	Origin      string              `json:"origin,omitempty"`
	Destination string              `json:"destination,omitempty"`
	PartNumber  string              `json:"part_number,omitempty"`
}

// UpsertControlRow creates or updates a control-panel row, re-evaluates its
// threshold tier, and returns the alert produced, if any.
func (s *Session) UpsertControlRow(input ControlRowInput) (*rules.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return nil, ErrNoSelection
	}
	if input.Name == "" {
		return nil, fmt.Errorf("control row requires a name")
	}
	if input.ID == "" {
		input.ID = newRecordID()
	}

	var alert *rules.Alert
	err := s.state.Mutate(s.now(), func(d *model.ShiftDraft) error {
		var evalErr error
		alert, evalErr = s.applyControlRow(d, input)
		return evalErr
	})
	if err != nil {
		return nil, err
	}

	s.autosave.Schedule()
	s.emitAlert(input.Family, alert)
	return alert, nil
}

// RemoveControlRow deletes a row by ID.
func (s *Session) RemoveControlRow(family model.ControlFamily, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return ErrNoSelection
	}

	err := s.state.Mutate(s.now(), func(d *model.ShiftDraft) error {
		p := &d.ControlPanel
		switch family {
		case model.FamilyShelfLife:
			for i, r := range p.ShelfLife {
				if r.ID == id {
					p.ShelfLife = append(p.ShelfLife[:i], p.ShelfLife[i+1:]...)
					return nil
				}
			}
		case model.FamilyStorageLocation:
			for i, r := range p.StorageLocation {
				if r.ID == id {
					p.StorageLocation = append(p.StorageLocation[:i], p.StorageLocation[i+1:]...)
					return nil
				}
			}
		case model.FamilyInTransit:
			for i, r := range p.InTransit {
				if r.ID == id {
					p.InTransit = append(p.InTransit[:i], p.InTransit[i+1:]...)
					return nil
				}
			}
		case model.FamilyCriticalBalance:
			for i, r := range p.CriticalBalance {
				if r.ID == id {
					p.CriticalBalance = append(p.CriticalBalance[:i], p.CriticalBalance[i+1:]...)
					return nil
				}
			}
		default:
			return fmt.Errorf("unknown control family %q", family)
		}
		return fmt.Errorf("no %s row with ID %s", family, id)
	})
	if err != nil {
		return err
	}

	s.autosave.Schedule()
	return nil
}

func (s *Session) applyControlRow(d *model.ShiftDraft, input ControlRowInput) (*rules.Alert, error) {
	now := s.now()
	p := &d.ControlPanel

	switch input.Family {
	case model.FamilyShelfLife:
		row := model.ShelfLifeRow{
			ID:        input.ID,
			Name:      input.Name,
			LotNumber: input.LotNumber,
			ExpiresAt: input.ExpiresAt,
			Quantity:  input.Quantity,
		}
		idx := -1
		for i, r := range p.ShelfLife {
			if r.ID == input.ID {
				idx = i
				row.RuleOverride = r.RuleOverride
				break
			}
		}
		value, ok := row.MonitoredValue(now)
		lvl, alert := s.evaluate(input.Family, row.ID, value, ok, row.RuleOverride)
		row.Status = lvl
		if idx >= 0 {
			p.ShelfLife[idx] = row
		} else {
			p.ShelfLife = append(p.ShelfLife, row)
		}
		return alert, nil

	case model.FamilyStorageLocation:
		row := model.StorageLocationRow{
			ID:       input.ID,
			Name:     input.Name,
			Location: input.Location,
			Quantity: input.Quantity,
		}
		idx := -1
		for i, r := range p.StorageLocation {
			if r.ID == input.ID {
				idx = i
				row.RuleOverride = r.RuleOverride
				break
			}
		}
		value, ok := row.MonitoredValue(now)
		lvl, alert := s.evaluate(input.Family, row.ID, value, ok, row.RuleOverride)
		row.Status = lvl
		if idx >= 0 {
			p.StorageLocation[idx] = row
		} else {
			p.StorageLocation = append(p.StorageLocation, row)
		}
		return alert, nil

	case model.FamilyInTransit:
		row := model.InTransitRow{
			ID:          input.ID,
			Name:        input.Name,
			Origin:      input.Origin,
			Destination: input.Destination,
			Quantity:    input.Quantity,
		}
		idx := -1
		for i, r := range p.InTransit {
			if r.ID == input.ID {
				idx = i
				row.RuleOverride = r.RuleOverride
				break
			}
		}
		value, ok := row.MonitoredValue(now)
		lvl, alert := s.evaluate(input.Family, row.ID, value, ok, row.RuleOverride)
		row.Status = lvl
		if idx >= 0 {
			p.InTransit[idx] = row
		} else {
			p.InTransit = append(p.InTransit, row)
		}
		return alert, nil

	case model.FamilyCriticalBalance:
		row := model.CriticalBalanceRow{
			ID:         input.ID,
			Name:       input.Name,
			PartNumber: input.PartNumber,
			Quantity:   input.Quantity,
		}
		idx := -1
		for i, r := range p.CriticalBalance {
			if r.ID == input.ID {
				idx = i
				row.RuleOverride = r.RuleOverride
				break
			}
		}
		value, ok := row.MonitoredValue(now)
		lvl, alert := s.evaluate(input.Family, row.ID, value, ok, row.RuleOverride)
		row.Status = lvl
		if idx >= 0 {
			p.CriticalBalance[idx] = row
		} else {
			p.CriticalBalance = append(p.CriticalBalance, row)
		}
		return alert, nil

	default:
		return nil, fmt.Errorf("unknown control family %q", input.Family)
	}
}

// evaluate resolves the rule source for one row and runs the three-tier
// check. A row-level override takes priority over the configured per-item
// override, which in turn replaces the family default.
func (s *Session) evaluate(family model.ControlFamily, id string, value float64, ok bool, override *rules.ColorRuleSet) (rules.Level, *rules.Alert) {
	if !ok || s.rules == nil {
		return "", nil
	}
	alerter := s.rules.Alerter(string(family))
	if alerter == nil {
		return "", nil
	}

	var src rules.RuleSource
	if override != nil {
		src = rules.ItemOverride(*override)
	} else {
		var found bool
		src, found = s.rules.Source(string(family), id)
		if !found {
			return "", nil
		}
	}

	lvl, alert, matched := alerter.Evaluate(value, src)
	if !matched {
		return "", nil
	}
	return lvl, alert
}

func (s *Session) emitAlert(family model.ControlFamily, alert *rules.Alert) {
	if alert == nil {
		return
	}
	s.metrics.AlertsEmitted.WithLabelValues(string(alert.Level)).Inc()
	s.bus.Publish(events.EventAlert, *alert)
	if err := s.notifier.Notify(*alert); err != nil {
		s.logger.Warn("alert delivery failed",
			zap.String("family", string(family)),
			zap.Error(err))
	}
}

// refreshControlStatuses silently recomputes every row's tier. Used after a
// draft is loaded or replaced by the poller; no alerts fire for remote
// edits. Caller holds the session mutex.
func (s *Session) refreshControlStatuses() {
	if s.state == nil {
		return
	}
	now := s.now()
	p := &s.state.Draft().ControlPanel

	for i := range p.ShelfLife {
		r := &p.ShelfLife[i]
		value, ok := r.MonitoredValue(now)
		r.Status, _ = s.evaluate(model.FamilyShelfLife, r.ID, value, ok, r.RuleOverride)
	}
	for i := range p.StorageLocation {
		r := &p.StorageLocation[i]
		value, ok := r.MonitoredValue(now)
		r.Status, _ = s.evaluate(model.FamilyStorageLocation, r.ID, value, ok, r.RuleOverride)
	}
	for i := range p.InTransit {
		r := &p.InTransit[i]
		value, ok := r.MonitoredValue(now)
		r.Status, _ = s.evaluate(model.FamilyInTransit, r.ID, value, ok, r.RuleOverride)
	}
	for i := range p.CriticalBalance {
		r := &p.CriticalBalance[i]
		value, ok := r.MonitoredValue(now)
		r.Status, _ = s.evaluate(model.FamilyCriticalBalance, r.ID, value, ok, r.RuleOverride)
	}
}
