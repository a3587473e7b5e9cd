package model

type Config struct {
	Station StationConfig `yaml:"station"`
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`
	History HistoryConfig `yaml:"history"`
	Team    TeamConfig    `yaml:"team"`
	Catalog CatalogConfig `yaml:"catalog"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Notify  NotifyConfig  `yaml:"notify"`
}

type StationConfig struct {
	BaseID string `yaml:"base_id"`
	Name   string `yaml:"name"`
}

type SessionConfig struct {
	OperatorID         string `yaml:"operator_id"`
	AutosaveDebounceMs int    `yaml:"autosave_debounce_ms"`
	PollIntervalMs     int    `yaml:"poll_interval_ms"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
}

type StoreConfig struct {
	// Dir is the shared store directory; all sessions of one base point at
	// the same directory (typically a mounted volume).
	Dir string `yaml:"dir"`
}

type HistoryConfig struct {
	Path string `yaml:"path"` // SQLite database file
}

type TeamConfig struct {
	Slots         int            `yaml:"slots"`
	Collaborators []Collaborator `yaml:"collaborators"`
}

type Collaborator struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	ShiftHours float64 `yaml:"shift_hours"`
}

// CollaboratorByID looks a collaborator up in the roster.
func (t TeamConfig) CollaboratorByID(id string) (Collaborator, bool) {
	for _, c := range t.Collaborators {
		if c.ID == id {
			return c, true
		}
	}
	return Collaborator{}, false
}

type CatalogConfig struct {
	ShiftSlots []ShiftSlot `yaml:"shift_slots"`
	Categories []Category  `yaml:"categories"`
	Tasks      []Task      `yaml:"tasks"`
}

type ShiftSlot struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Category struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	// Required categories must have at least one task value entered
	// before the draft can finalize.
	Required bool `yaml:"required"`
	// RosterStyle categories collect free-form rows; a row only requires a
	// value once its description has been filled in.
	RosterStyle bool `yaml:"roster_style,omitempty"`
}

type Task struct {
	ID          string          `yaml:"id"`
	CategoryID  string          `yaml:"category_id"`
	Name        string          `yaml:"name"`
	Kind        MeasurementKind `yaml:"kind"`
	UnitMinutes float64         `yaml:"unit_minutes,omitempty"` // count kind only
	Required    bool            `yaml:"required"`
}

// TaskByID looks a task up in the catalog.
func (c CatalogConfig) TaskByID(id string) (Task, bool) {
	for _, t := range c.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// CategoryByID looks a category up in the catalog.
func (c CatalogConfig) CategoryByID(id string) (Category, bool) {
	for _, cat := range c.Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

// ShiftSlotByID looks a shift slot up in the catalog.
func (c CatalogConfig) ShiftSlotByID(id string) (ShiftSlot, bool) {
	for _, s := range c.ShiftSlots {
		if s.ID == id {
			return s, true
		}
	}
	return ShiftSlot{}, false
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	// Addr enables the Prometheus listener when non-empty, e.g. ":9137".
	Addr string `yaml:"addr,omitempty"`
}

type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}
