package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/superst1/chatbot-whatsapp-citas/internal/entities"
	"github.com/superst1/chatbot-whatsapp-citas/internal/slots"
)

// ScheduleConfig is the root of schedule.yaml.
type ScheduleConfig struct {
	Open        string `yaml:"open"`  // "08:00"
	Close       string `yaml:"close"` // "17:00"
	StepMinutes int    `yaml:"step_minutes"`
	LunchStart  string `yaml:"lunch_start,omitempty"`
	LunchEnd    string `yaml:"lunch_end,omitempty"`
	DaysOff     []int  `yaml:"days_off"` // 1=Mon, 7=Sun
	Timezone    string `yaml:"timezone"` // IANA name, e.g. America/Guayaquil
}

func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule config: %w", err)
	}

	var cfg ScheduleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse schedule config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate schedule config: %w", err)
	}
	return &cfg, nil
}

func (c *ScheduleConfig) Validate() error {
	open, ok := entities.NormalizeTime(c.Open)
	if !ok {
		return fmt.Errorf("invalid open time %q", c.Open)
	}
	closing, ok := entities.NormalizeTime(c.Close)
	if !ok {
		return fmt.Errorf("invalid close time %q", c.Close)
	}
	if closing <= open {
		return fmt.Errorf("close %s must be after open %s", closing, open)
	}
	if c.StepMinutes < 0 {
		return fmt.Errorf("step_minutes must be positive")
	}
	if (c.LunchStart == "") != (c.LunchEnd == "") {
		return fmt.Errorf("lunch_start and lunch_end must be set together")
	}
	for _, d := range c.DaysOff {
		if d < 1 || d > 7 {
			return fmt.Errorf("invalid day off %d", d)
		}
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	return nil
}

// Schedule converts the file representation into a slot grid.
func (c *ScheduleConfig) Schedule() (slots.Schedule, error) {
	s := slots.Schedule{
		Open:        clock(c.Open),
		Close:       clock(c.Close),
		StepMinutes: c.StepMinutes,
		LunchStart:  clock(c.LunchStart),
		LunchEnd:    clock(c.LunchEnd),
		Location:    time.Local,
	}
	if s.StepMinutes == 0 {
		s.StepMinutes = 60
	}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return slots.Schedule{}, fmt.Errorf("load timezone: %w", err)
		}
		s.Location = loc
	}
	for _, d := range c.DaysOff {
		s.DaysOff = append(s.DaysOff, time.Weekday(d%7))
	}
	return s, nil
}

func clock(raw string) string {
	if v, ok := entities.NormalizeTime(raw); ok {
		return v
	}
	return strings.TrimSpace(raw)
}
