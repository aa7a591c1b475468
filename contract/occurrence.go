/*
occurrence.go - Service-visit occurrence generation

PURPOSE:
  Produces the dated sequence of service visits implied by a contract
  line's Schedule within a date range.

ANCHOR:
  The occurrence stream is anchored at a fixed date (the contract's
  billing start), never at the query window. Every-N matching counts
  from the anchor, so any two windows over the same line select from
  one and the same underlying stream: adjacent cycle windows tile into
  exactly the dates a single full-span query returns.

TWO MODES:
  Anchor stepping (default):
    Occurrences at anchor + i*Every units (day/week/month), with month
    steps clamped from the anchor like billing periods. Dates before
    rangeStart are skipped, not re-based.

  Weekday enumeration (week unit with explicit DaysOfWeek):
    Every date in range whose weekday is in DaysOfWeek and whose week
    (counted with the configured week start) is a multiple of Every
    weeks from the anchor's week. Day and month units ignore
    DaysOfWeek.

EXCEPTIONS:
  Schedule.Exceptions are weekday values that are always filtered from
  the output, regardless of how the occurrence was computed. (The data
  model declares exceptions as weekdays, not dates; skipping a single
  concrete date is not expressible.)

Inactive lines produce an empty sequence. The sequence is a pure
function of its inputs and bounded by rangeEnd.
*/
package contract

import (
	"time"

	"github.com/warp/contract-engine/calendar"
)

// OccurrenceSeq lazily generates the visit dates of one contract line.
type OccurrenceSeq struct {
	line       ContractLine
	anchor     calendar.Date
	rangeStart calendar.Date
	rangeEnd   calendar.Date
	weekStart  time.Weekday

	weekdayMode bool
	baseWeek    int
	cursor      calendar.Date // weekday mode: next candidate day
	step        int           // anchor mode: next step index
	done        bool
}

// Occurrences generates the occurrences of line in [rangeStart,
// rangeEnd]. anchor fixes the stream's origin (visits never predate
// it); weekStart configures week boundaries for every-N-weeks
// matching.
func Occurrences(line ContractLine, anchor, rangeStart, rangeEnd calendar.Date, weekStart time.Weekday) *OccurrenceSeq {
	if rangeStart.Before(anchor) {
		rangeStart = anchor
	}
	seq := &OccurrenceSeq{
		line:       line.clone(),
		anchor:     anchor,
		rangeStart: rangeStart,
		rangeEnd:   rangeEnd,
		weekStart:  weekStart,
		cursor:     rangeStart,
	}
	seq.weekdayMode = line.Schedule.Unit == calendar.UnitWeek && len(line.Schedule.DaysOfWeek) > 0
	seq.baseWeek = calendar.WeekIndex(anchor, weekStart)
	if !line.IsActive || line.Schedule.Every < 1 || rangeEnd.Before(rangeStart) {
		seq.done = true
	}
	return seq
}

// Next returns the next occurrence date, or ok=false when exhausted.
func (s *OccurrenceSeq) Next() (calendar.Date, bool) {
	if s.done {
		return calendar.Date{}, false
	}
	if s.weekdayMode {
		return s.nextWeekday()
	}
	return s.nextAnchor()
}

func (s *OccurrenceSeq) nextWeekday() (calendar.Date, bool) {
	for ; !s.cursor.After(s.rangeEnd); s.cursor = s.cursor.AddDays(1) {
		d := s.cursor
		if !weekdayIn(d.Weekday(), s.line.Schedule.DaysOfWeek) {
			continue
		}
		if (calendar.WeekIndex(d, s.weekStart)-s.baseWeek)%s.line.Schedule.Every != 0 {
			continue
		}
		if weekdayIn(d.Weekday(), s.line.Schedule.Exceptions) {
			continue
		}
		s.cursor = s.cursor.AddDays(1)
		return d, true
	}
	s.done = true
	return calendar.Date{}, false
}

func (s *OccurrenceSeq) nextAnchor() (calendar.Date, bool) {
	for {
		d := calendar.StepPeriod(s.anchor, s.line.Schedule.Unit, s.step*s.line.Schedule.Every)
		if d.After(s.rangeEnd) {
			s.done = true
			return calendar.Date{}, false
		}
		s.step++
		if d.Before(s.rangeStart) {
			continue
		}
		if weekdayIn(d.Weekday(), s.line.Schedule.Exceptions) {
			continue
		}
		return d, true
	}
}

// All drains the sequence into a slice.
func (s *OccurrenceSeq) All() []calendar.Date {
	var dates []calendar.Date
	for {
		d, ok := s.Next()
		if !ok {
			return dates
		}
		dates = append(dates, d)
	}
}

// Count drains the sequence and returns the number of occurrences.
func (s *OccurrenceSeq) Count() int {
	n := 0
	for {
		if _, ok := s.Next(); !ok {
			return n
		}
		n++
	}
}

func weekdayIn(wd time.Weekday, set []time.Weekday) bool {
	for _, w := range set {
		if w == wd {
			return true
		}
	}
	return false
}
