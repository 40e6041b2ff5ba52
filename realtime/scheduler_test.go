package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_OneShotEventFiresOnceThenPrunes(t *testing.T) {
	s := NewScheduler()
	fired := 0
	threshold := time.Date(2020, 1, 1, 9, 30, 0, 0, time.UTC)

	s.Add(ScheduledEvent{
		Name:     "open",
		Triggers: []time.Time{threshold},
		Action:   func(time.Time) { fired++ },
	})

	s.Update(threshold.Add(-time.Minute))
	assert.Equal(t, 0, fired)
	assert.Equal(t, 1, s.Len())

	s.Update(threshold)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, s.Len())

	s.Update(threshold.Add(time.Minute))
	assert.Equal(t, 1, fired, "one-shot event must not re-fire")
}

func TestScheduler_RecurringEventFiresEachTriggerInOrder(t *testing.T) {
	s := NewScheduler()
	var seen []time.Time
	day1 := time.Date(2020, 1, 1, 9, 30, 0, 0, time.UTC)
	day2 := time.Date(2020, 1, 2, 9, 30, 0, 0, time.UTC)

	s.Add(ScheduledEvent{
		Name:     "open",
		Triggers: []time.Time{day1, day2},
		Action:   func(now time.Time) { seen = append(seen, now) },
	})

	s.Update(day1)
	assert.Equal(t, []time.Time{day1}, seen)
	assert.Equal(t, 1, s.Len())

	s.Update(day2)
	assert.Equal(t, []time.Time{day1, day2}, seen)
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_MultipleDueTriggersFireInOrderOnASingleUpdate(t *testing.T) {
	s := NewScheduler()
	var seen []time.Time
	base := time.Date(2020, 1, 1, 9, 30, 0, 0, time.UTC)

	s.Add(ScheduledEvent{
		Name:     "heartbeat",
		Triggers: []time.Time{base.Add(2 * time.Second), base, base.Add(time.Second)},
		Action:   func(now time.Time) { seen = append(seen, now) },
	})

	s.Update(base.Add(5 * time.Second))

	assert.Equal(t, []time.Time{base, base.Add(time.Second), base.Add(2 * time.Second)}, seen,
		"triggers must fire in ascending order regardless of registration order")
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_AddAfterClockAdvancedSkipsPastTriggers(t *testing.T) {
	s := NewScheduler()
	fired := 0
	base := time.Date(2020, 1, 1, 9, 30, 0, 0, time.UTC)

	s.Update(base.Add(10 * time.Second))

	s.Add(ScheduledEvent{
		Name:     "late registration",
		Triggers: []time.Time{base, base.Add(5 * time.Second), base.Add(20 * time.Second)},
		Action:   func(time.Time) { fired++ },
	})

	assert.Equal(t, 1, s.Len(), "event with one future trigger remains pending")

	s.Update(base.Add(30 * time.Second))
	assert.Equal(t, 1, fired, "triggers already behind the clock at registration must not fire")
	assert.Equal(t, 0, s.Len())
}
