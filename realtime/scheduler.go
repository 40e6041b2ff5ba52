// Package realtime implements the real-time scheduler (spec §4.6 step 9):
// a per-second clock driver for live trading, plus the generalized
// time-triggered event scheduler both backtest and live modes share.
package realtime

import (
	"sort"
	"time"

	"github.com/samber/lo"
)

// ScheduledEvent carries a sorted, ascending list of UTC trigger times and
// fires Action once for each trigger the clock's cursor reaches, in order.
// An event with a single trigger is a one-shot; one with many is effectively
// recurring on whatever cadence the caller pre-computed (e.g. every trading
// day's market open).
type ScheduledEvent struct {
	Name     string
	Triggers []time.Time
	Action   func(now time.Time)

	fired int // count of triggers already consumed from the front
}

// newPendingEvent sorts Triggers ascending and skips forward past any that
// are already due as of asOf, the way an event registered mid-session must
// not immediately fire for triggers the clock has already passed.
func newPendingEvent(ev ScheduledEvent, asOf time.Time, hasAsOf bool) ScheduledEvent {
	sort.Slice(ev.Triggers, func(i, j int) bool { return ev.Triggers[i].Before(ev.Triggers[j]) })
	ev.fired = 0
	if hasAsOf {
		for ev.fired < len(ev.Triggers) && !ev.Triggers[ev.fired].After(asOf) {
			ev.fired++
		}
	}
	return ev
}

// pending reports whether ev still has unfired triggers.
func (ev ScheduledEvent) pending() bool {
	return ev.fired < len(ev.Triggers)
}

// nextTrigger returns ev's next unfired trigger time and whether one exists.
func (ev ScheduledEvent) nextTrigger() (time.Time, bool) {
	if !ev.pending() {
		return time.Time{}, false
	}
	return ev.Triggers[ev.fired], true
}

// Scheduler holds pending time-triggered events and fires each one's
// triggers in order as the clock's cursor advances past them, mirroring the
// teacher's order-condition scheduler but keyed on a sorted trigger list
// instead of a live market-data predicate.
type Scheduler struct {
	events  []ScheduledEvent
	current time.Time
	hasTime bool
}

// NewScheduler builds an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Add registers event. If the scheduler has already been advanced past some
// of event's triggers (it was registered after the clock's current time),
// those triggers are skipped forward without firing: only triggers still
// ahead of the scheduler's cursor will ever fire for this event.
func (s *Scheduler) Add(event ScheduledEvent) {
	s.events = append(s.events, newPendingEvent(event, s.current, s.hasTime))
}

// Update advances the scheduler's cursor to now, firing — in trigger order —
// every pending trigger of every event that is at or before now, then
// pruning events with no triggers left.
func (s *Scheduler) Update(now time.Time) {
	s.current = now
	s.hasTime = true

	for i := range s.events {
		ev := &s.events[i]
		for {
			t, ok := ev.nextTrigger()
			if !ok || t.After(now) {
				break
			}
			ev.fired++
			ev.Action(now)
		}
	}

	s.events = lo.Filter(s.events, func(ev ScheduledEvent, _ int) bool { return ev.pending() })
}

// Len reports the number of pending events, for diagnostics.
func (s *Scheduler) Len() int {
	return len(s.events)
}
