package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseHours parses an entered duration value: "HH:MM" or decimal hours.
func ParseHours(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if h, m, ok := strings.Cut(s, ":"); ok {
		hours, err := strconv.Atoi(h)
		if err != nil || hours < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		minutes, err := strconv.Atoi(m)
		if err != nil || minutes < 0 || minutes > 59 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return float64(hours) + float64(minutes)/60, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return v, nil
}

// ParseCount parses an entered count value.
func ParseCount(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	return v, nil
}

// ParseTaskValue validates and converts an entered value to hours according
// to the task's measurement kind.
func ParseTaskValue(task Task, value string) (float64, error) {
	switch task.Kind {
	case KindDuration:
		return ParseHours(value)
	case KindCount:
		n, err := ParseCount(value)
		if err != nil {
			return 0, err
		}
		return n * task.UnitMinutes / 60, nil
	default:
		return 0, fmt.Errorf("task %s: unknown measurement kind %q", task.ID, task.Kind)
	}
}

// AvailableHours sums the standard shift length of every assigned
// collaborator. Unknown roster IDs contribute nothing.
func AvailableHours(d *ShiftDraft, team TeamConfig) float64 {
	var total float64
	for _, id := range d.AssignedCollaborators() {
		if c, ok := team.CollaboratorByID(id); ok {
			total += c.ShiftHours
		}
	}
	return total
}

// ProducedHours sums catalog task values (converted per measurement kind)
// and non-routine rows. Unparsable values contribute nothing here; they are
// reported by finalize validation instead.
func ProducedHours(d *ShiftDraft, catalog CatalogConfig) float64 {
	var total float64
	for taskID, value := range d.TaskValues {
		if value == "" {
			continue
		}
		task, ok := catalog.TaskByID(taskID)
		if !ok {
			continue
		}
		if h, err := ParseTaskValue(task, value); err == nil {
			total += h
		}
	}
	for _, e := range d.NonRoutine {
		if e.Value == "" {
			continue
		}
		switch e.Kind {
		case KindDuration:
			if h, err := ParseHours(e.Value); err == nil {
				total += h
			}
		case KindCount:
			if n, err := ParseCount(e.Value); err == nil {
				total += n * e.UnitMinutes / 60
			}
		}
	}
	return total
}

// Performance is produced over available as a percentage; 0 when nothing is
// available.
func Performance(produced, available float64) float64 {
	if available <= 0 {
		return 0
	}
	return produced / available * 100
}
