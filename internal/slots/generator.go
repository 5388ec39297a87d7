// Package slots enumerates bookable times and serializes reservations of a
// single (date, time) slot.
package slots

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/superst1/chatbot-whatsapp-citas/internal/entities"
)

// Schedule describes the bookable grid of a working day.
type Schedule struct {
	Open        string // "08:00"
	Close       string // "17:00", exclusive
	StepMinutes int
	LunchStart  string // optional
	LunchEnd    string
	DaysOff     []time.Weekday
	Location    *time.Location
}

func DefaultSchedule() Schedule {
	return Schedule{Open: "08:00", Close: "17:00", StepMinutes: 60, Location: time.Local}
}

func (s Schedule) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

func (s Schedule) isDayOff(day time.Weekday) bool {
	for _, d := range s.DaysOff {
		if d == day {
			return true
		}
	}
	return false
}

// Times returns every slot start on date, lunch excluded. Days off yield nil.
func (s Schedule) Times(date time.Time) ([]time.Time, error) {
	if s.isDayOff(date.Weekday()) {
		return nil, nil
	}
	step := s.StepMinutes
	if step <= 0 {
		step = 60
	}

	start, err := parseTimeOnDate(date, s.Open)
	if err != nil {
		return nil, fmt.Errorf("parse open time: %w", err)
	}
	end, err := parseTimeOnDate(date, s.Close)
	if err != nil {
		return nil, fmt.Errorf("parse close time: %w", err)
	}

	var lunchStart, lunchEnd time.Time
	hasLunch := s.LunchStart != "" && s.LunchEnd != ""
	if hasLunch {
		if lunchStart, err = parseTimeOnDate(date, s.LunchStart); err != nil {
			return nil, fmt.Errorf("parse lunch start: %w", err)
		}
		if lunchEnd, err = parseTimeOnDate(date, s.LunchEnd); err != nil {
			return nil, fmt.Errorf("parse lunch end: %w", err)
		}
	}

	slotDuration := time.Duration(step) * time.Minute
	var out []time.Time
	for cursor := start; !cursor.Add(slotDuration).After(end); cursor = cursor.Add(slotDuration) {
		if hasLunch && isOverlapping(cursor, cursor.Add(slotDuration), lunchStart, lunchEnd) {
			continue
		}
		out = append(out, cursor)
	}
	return out, nil
}

// BookedLister reports occupied times on a date.
type BookedLister interface {
	ListBookedSlotsForDate(ctx context.Context, date string) ([]string, error)
}

// Generator lists free times for a date. The schedule can be swapped at
// runtime when the configuration changes.
type Generator struct {
	booked BookedLister
	now    func() time.Time

	mu       sync.RWMutex
	schedule Schedule
}

func NewGenerator(booked BookedLister, schedule Schedule) *Generator {
	return &Generator{booked: booked, schedule: schedule, now: time.Now}
}

// WithClock replaces the time source, used by tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

func (g *Generator) SetSchedule(s Schedule) {
	g.mu.Lock()
	g.schedule = s
	g.mu.Unlock()
}

func (g *Generator) Schedule() Schedule {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.schedule
}

func (g *Generator) day(date string) (time.Time, Schedule, error) {
	s := g.Schedule()
	day, err := entities.ParseDate(date, s.location())
	if err != nil {
		return time.Time{}, s, fmt.Errorf("parse date %q: %w", date, err)
	}
	return day, s, nil
}

// IsPastDate reports whether date is before today in the schedule location.
func (g *Generator) IsPastDate(date string) bool {
	day, s, err := g.day(date)
	if err != nil {
		return false
	}
	now := g.now().In(s.location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location())
	return day.Before(today)
}

// OnGrid reports whether hhmm is a slot start of the schedule on date.
func (g *Generator) OnGrid(date, hhmm string) bool {
	day, s, err := g.day(date)
	if err != nil {
		return false
	}
	times, err := s.Times(day)
	if err != nil {
		return false
	}
	for _, t := range times {
		if t.Format(entities.TimeLayout) == hhmm {
			return true
		}
	}
	return false
}

// AvailableTimes returns HH:MM slot starts on date that are neither booked
// nor already past.
func (g *Generator) AvailableTimes(ctx context.Context, date string) ([]string, error) {
	day, s, err := g.day(date)
	if err != nil {
		return nil, err
	}
	times, err := s.Times(day)
	if err != nil {
		return nil, err
	}
	if len(times) == 0 {
		return nil, nil
	}

	booked, err := g.booked.ListBookedSlotsForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}
	taken := make(map[string]bool, len(booked))
	for _, b := range booked {
		taken[b] = true
	}

	now := g.now()
	var free []string
	for _, t := range times {
		hhmm := t.Format(entities.TimeLayout)
		if taken[hhmm] || t.Before(now) {
			continue
		}
		free = append(free, hhmm)
	}
	return free, nil
}

func parseTimeOnDate(date time.Time, timeStr string) (time.Time, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("invalid time format: %s", timeStr)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hour: %w", err)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid minute: %w", err)
	}

	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}

func isOverlapping(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && start2.Before(end1)
}
