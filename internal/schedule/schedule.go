// Package schedule holds the pure time arithmetic behind slot generation:
// business day windows, candidate enumeration and the overlap predicate.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"detailbook/internal/models"
)

var (
	ErrBadDate = errors.New("date must be YYYY-MM-DD")
	ErrBadTime = errors.New("time must be HH:MM")
)

type Options struct {
	StartHour       int
	EndHour         int
	GranularityMin  int
	TravelBufferMin int
	Location        *time.Location
}

func DefaultOptions() Options {
	return Options{
		StartHour:       8,
		EndHour:         18,
		GranularityMin:  15,
		TravelBufferMin: 30,
		Location:        time.UTC,
	}
}

func (o Options) Validate() error {
	if o.StartHour < 0 || o.EndHour > 24 || o.StartHour >= o.EndHour {
		return fmt.Errorf("business hours %d-%d are invalid", o.StartHour, o.EndHour)
	}
	if o.GranularityMin <= 0 {
		return fmt.Errorf("slot granularity must be positive, got %d", o.GranularityMin)
	}
	if o.TravelBufferMin < 0 {
		return fmt.Errorf("travel buffer must not be negative, got %d", o.TravelBufferMin)
	}
	return nil
}

// Loc is the business location, UTC when unset.
func (o Options) Loc() *time.Location {
	return o.loc()
}

func (o Options) loc() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// Overlaps is the single conflict predicate for half-open intervals.
// Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ParseDate parses a civil date as midnight in the business location.
func (o Options) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(models.DateLayout, s, o.loc())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, s)
	}
	return d, nil
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse(models.TimeLayout, s)
	if err != nil || len(s) != len(models.TimeLayout) {
		return 0, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// At returns the UTC instant for a civil date and clock time in the business location.
func (o Options) At(date time.Time, hour, minute int) time.Time {
	y, m, d := date.In(o.loc()).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, o.loc()).UTC()
}

// Day returns [midnight, next midnight) of the civil date, in UTC.
func (o Options) Day(date time.Time) (time.Time, time.Time) {
	y, m, d := date.In(o.loc()).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, o.loc())
	end := time.Date(y, m, d+1, 0, 0, 0, 0, o.loc())
	return start.UTC(), end.UTC()
}

// BusinessHours returns the open and close instants of the civil date, in UTC.
func (o Options) BusinessHours(date time.Time) (time.Time, time.Time) {
	return o.At(date, o.StartHour, 0), o.At(date, o.EndHour, 0)
}

// TotalDuration is the timeline footprint of one appointment.
func (o Options) TotalDuration(serviceMin int, addOnMins ...int) time.Duration {
	total := serviceMin + o.TravelBufferMin
	for _, m := range addOnMins {
		total += m
	}
	return time.Duration(total) * time.Minute
}

// Candidates enumerates windows of the given length starting every granularity
// step from open, keeping only those that end no later than close.
func (o Options) Candidates(date time.Time, length time.Duration) []models.Interval {
	if length <= 0 {
		return nil
	}
	open, closing := o.BusinessHours(date)
	step := time.Duration(o.GranularityMin) * time.Minute
	if step <= 0 {
		return nil
	}

	var out []models.Interval
	for start := open; !start.Add(length).After(closing); start = start.Add(step) {
		out = append(out, models.Interval{Start: start, End: start.Add(length)})
	}
	return out
}

// Free drops every candidate that overlaps any busy interval. Order is preserved.
func Free(candidates, busy []models.Interval) []models.Interval {
	out := make([]models.Interval, 0, len(candidates))
	for _, c := range candidates {
		conflict := false
		for _, b := range busy {
			if Overlaps(c.Start, c.End, b.Start, b.End) {
				conflict = true
				break
			}
		}
		if !conflict {
			out = append(out, c)
		}
	}
	return out
}

// Slots renders intervals for clients, labelled in the business location.
func (o Options) Slots(intervals []models.Interval) []models.Slot {
	sort.SliceStable(intervals, func(i, j int) bool { return intervals[i].Start.Before(intervals[j].Start) })
	slots := make([]models.Slot, 0, len(intervals))
	for _, iv := range intervals {
		start := iv.Start.In(o.loc())
		end := iv.End.In(o.loc())
		slots = append(slots, models.Slot{
			Start:     iv.Start.UTC(),
			End:       iv.End.UTC(),
			StartTime: start.Format(models.TimeLayout),
			Label:     start.Format(models.SlotLabelLayout) + " - " + end.Format(models.SlotLabelLayout),
		})
	}
	return slots
}

// Dates lists every civil date touched by [from, to), as YYYY-MM-DD.
func (o Options) Dates(from, to time.Time) []string {
	if !from.Before(to) {
		return nil
	}
	var out []string
	day, _ := o.Day(from)
	for day.Before(to) {
		out = append(out, day.In(o.loc()).Format(models.DateLayout))
		_, day = o.Day(day)
	}
	return out
}
