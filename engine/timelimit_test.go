package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsolator_AbortsWhenBodyExceedsLimit(t *testing.T) {
	iso := NewIsolator(NewTimeLimitPredicate(5 * time.Millisecond))

	result := iso.Run(func() error {
		time.Sleep(15 * time.Millisecond)
		return nil
	})

	assert.True(t, result.Aborted)
	assert.Contains(t, result.Reason, "Algorithm took longer than")
	assert.Contains(t, result.Reason, "on a single time loop.")
}

func TestIsolator_DoesNotAbortWithinLimit(t *testing.T) {
	iso := NewIsolator(NewTimeLimitPredicate(time.Second))

	result := iso.Run(func() error {
		return nil
	})

	assert.False(t, result.Aborted)
	assert.Empty(t, result.Reason)
}

func TestIsolator_PropagatesBodyErrorAlongsideAbort(t *testing.T) {
	iso := NewIsolator(NewTimeLimitPredicate(time.Millisecond))
	bodyErr := errors.New("boom")

	result := iso.Run(func() error {
		time.Sleep(5 * time.Millisecond)
		return bodyErr
	})

	assert.True(t, result.Aborted)
	assert.ErrorIs(t, result.Err, bodyErr)
}

func TestNewTimeLimitPredicate_ReturnsEmptyWhenWithinBound(t *testing.T) {
	p := NewTimeLimitPredicate(time.Minute)
	assert.Empty(t, p(30*time.Second))
	assert.NotEmpty(t, p(2*time.Minute))
}

func TestIsolator_RunAbortsBeforeBodyCompletesWhenPolling(t *testing.T) {
	iso := NewIsolatorWithPollInterval(NewTimeLimitPredicate(10*time.Millisecond), 5*time.Millisecond)

	bodyDone := make(chan struct{})
	start := time.Now()
	result := iso.Run(func() error {
		defer close(bodyDone)
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	elapsed := time.Since(start)

	assert.True(t, result.Aborted)
	assert.Less(t, elapsed, 100*time.Millisecond, "Run must return well before the stuck body finishes")

	select {
	case <-bodyDone:
		t.Fatal("body must still be running when Run returns")
	default:
	}
}
