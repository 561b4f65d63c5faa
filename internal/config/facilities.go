package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"carevisit/internal/model"
	"carevisit/internal/slots"
)

var facilityIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// RuleConfig is one recurring visit rule.
type RuleConfig struct {
	Weekday int    `yaml:"weekday"` // 0=Sun ... 6=Sat
	Ordinal int    `yaml:"ordinal"` // 1..5, or -1..-5 from month end
	Time    string `yaml:"time"`    // "14:00"
}

// WindowConfig is a facility admission window.
type WindowConfig struct {
	ClosedWeekdays []int `yaml:"closed_weekdays"`
	AllowSameDay   *bool `yaml:"allow_same_day,omitempty"`
	MaxMonthsAhead int   `yaml:"max_months_ahead"`
}

// FacilityConfig represents a single facility.
type FacilityConfig struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	IsActive bool          `yaml:"is_active"`
	Rules    []RuleConfig  `yaml:"rules"`
	Window   *WindowConfig `yaml:"window,omitempty"`
}

// BlackoutConfig is an operator blackout date.
type BlackoutConfig struct {
	Date   string `yaml:"date"` // "2026-01-01"
	Reason string `yaml:"reason"`
}

// FacilitiesConfig is the root of facilities.yaml.
type FacilitiesConfig struct {
	Facilities []FacilityConfig `yaml:"facilities"`
	Defaults   WindowConfig     `yaml:"defaults"`
	Blackouts  []BlackoutConfig `yaml:"blackout_dates"`
}

// LoadFacilitiesConfig loads and validates facilities.yaml.
func LoadFacilitiesConfig(path string) (*FacilitiesConfig, error) {
	if path == "" {
		path = "configs/facilities.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facilities config: %w", err)
	}

	var cfg FacilitiesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse facilities config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate facilities config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *FacilitiesConfig) Validate() error {
	if len(c.Facilities) == 0 {
		return fmt.Errorf("no facilities defined")
	}

	ids := make(map[string]bool)
	for i, f := range c.Facilities {
		if !facilityIDPattern.MatchString(f.ID) {
			return fmt.Errorf("facility[%d]: id %q must be lowercase letters, digits and dashes", i, f.ID)
		}
		if ids[f.ID] {
			return fmt.Errorf("facility[%d]: duplicate id %q", i, f.ID)
		}
		ids[f.ID] = true

		if f.Name == "" {
			return fmt.Errorf("facility[%d]: name is required", i)
		}

		for j, r := range f.Rules {
			if err := r.toModel(f.ID).Validate(); err != nil {
				return fmt.Errorf("facility[%d].rules[%d]: %w", i, j, err)
			}
		}

		if f.Window != nil {
			if err := validateWindow(f.Window, fmt.Sprintf("facility[%d].window", i)); err != nil {
				return err
			}
		}
	}

	if err := validateWindow(&c.Defaults, "defaults"); err != nil {
		return err
	}

	for i, b := range c.Blackouts {
		if _, err := model.ParseDate(b.Date); err != nil {
			return fmt.Errorf("blackout_dates[%d]: invalid date %q, expected YYYY-MM-DD", i, b.Date)
		}
	}

	return nil
}

func validateWindow(w *WindowConfig, prefix string) error {
	for i, d := range w.ClosedWeekdays {
		if d < 0 || d > 6 {
			return fmt.Errorf("%s.closed_weekdays[%d]: invalid day %d, must be 0-6 (0=Sun)", prefix, i, d)
		}
	}
	if w.MaxMonthsAhead < 0 {
		return fmt.Errorf("%s.max_months_ahead cannot be negative", prefix)
	}
	return nil
}

// applyDefaults fills facility windows from the defaults section.
func (c *FacilitiesConfig) applyDefaults() {
	for i := range c.Facilities {
		w := c.Facilities[i].Window
		if w == nil {
			def := c.Defaults
			c.Facilities[i].Window = &def
			continue
		}
		if w.ClosedWeekdays == nil {
			w.ClosedWeekdays = c.Defaults.ClosedWeekdays
		}
		if w.AllowSameDay == nil {
			w.AllowSameDay = c.Defaults.AllowSameDay
		}
		if w.MaxMonthsAhead == 0 {
			w.MaxMonthsAhead = c.Defaults.MaxMonthsAhead
		}
	}
}

func (r RuleConfig) toModel(facility string) model.RecurringRule {
	return model.RecurringRule{Facility: facility, Weekday: time.Weekday(r.Weekday), Ordinal: r.Ordinal, Time: r.Time}
}

func (w WindowConfig) toWindow() slots.Window {
	out := slots.Window{MaxMonthsAhead: w.MaxMonthsAhead}
	for _, d := range w.ClosedWeekdays {
		out.ClosedWeekdays = append(out.ClosedWeekdays, time.Weekday(d))
	}
	if w.AllowSameDay != nil {
		out.AllowSameDay = *w.AllowSameDay
	}
	return out
}

// Facility returns the facility config by ID.
func (c *FacilitiesConfig) Facility(id string) *FacilityConfig {
	for i := range c.Facilities {
		if c.Facilities[i].ID == id {
			return &c.Facilities[i]
		}
	}
	return nil
}

// ModelFacilities converts the list for the store.
func (c *FacilitiesConfig) ModelFacilities() []model.Facility {
	out := make([]model.Facility, 0, len(c.Facilities))
	for _, f := range c.Facilities {
		out = append(out, model.Facility{ID: f.ID, Name: f.Name, Active: f.IsActive})
	}
	return out
}

// Rules returns the recurring rules of active facilities.
func (c *FacilitiesConfig) Rules() []model.RecurringRule {
	var rules []model.RecurringRule
	for _, f := range c.Facilities {
		if !f.IsActive {
			continue
		}
		for _, r := range f.Rules {
			rules = append(rules, r.toModel(f.ID))
		}
	}
	return rules
}

// Windows returns the admission window of every facility.
func (c *FacilitiesConfig) Windows() map[string]slots.Window {
	out := make(map[string]slots.Window, len(c.Facilities))
	for _, f := range c.Facilities {
		if f.Window != nil {
			out[f.ID] = f.Window.toWindow()
		}
	}
	return out
}

// DefaultWindow returns the window for facilities not in the file.
func (c *FacilitiesConfig) DefaultWindow() slots.Window {
	return c.Defaults.toWindow()
}

// NgDates returns the configured blackout dates.
func (c *FacilitiesConfig) NgDates() []model.NgDate {
	out := make([]model.NgDate, 0, len(c.Blackouts))
	for _, b := range c.Blackouts {
		d, err := model.ParseDate(b.Date)
		if err != nil {
			continue
		}
		out = append(out, model.NgDate{Date: d, Reason: b.Reason})
	}
	return out
}

// String returns a summary of the configuration.
func (c *FacilitiesConfig) String() string {
	active := 0
	for _, f := range c.Facilities {
		if f.IsActive {
			active++
		}
	}
	return fmt.Sprintf("FacilitiesConfig: %d facilities (%d active), %d rules, %d blackout dates",
		len(c.Facilities), active, len(c.Rules()), len(c.Blackouts))
}
