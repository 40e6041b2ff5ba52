package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubscriptionConfig_RejectsUnsupportedSecurityType(t *testing.T) {
	_, err := NewSubscriptionConfig("FOO", SecurityType("FUTURE"), ResolutionDaily)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedSecurityType)
}

func TestNewSubscriptionConfig_AcceptsSupportedTypes(t *testing.T) {
	for _, sec := range []SecurityType{SecurityTypeEquity, SecurityTypeForex, SecurityTypeCFD, SecurityTypeOption} {
		cfg, err := NewSubscriptionConfig("FOO", sec, ResolutionMinute)
		require.NoError(t, err)
		assert.Equal(t, "FOO", cfg.MappedSymbol)
	}
}

func TestSubscriptionConfig_EqualIgnoresMappedSymbol(t *testing.T) {
	a, _ := NewSubscriptionConfig("FOO", SecurityTypeEquity, ResolutionDaily)
	b, _ := NewSubscriptionConfig("FOO", SecurityTypeEquity, ResolutionDaily)
	b.MappedSymbol = "BAR"

	assert.True(t, a.Equal(b))
}

type sliceReader struct {
	points []DataPoint
	cursor int
}

func (r *sliceReader) MoveNext() bool {
	if r.cursor >= len(r.points) {
		return false
	}
	r.cursor++
	return true
}
func (r *sliceReader) Current() DataPoint { return r.points[r.cursor-1] }
func (r *sliceReader) Err() error         { return nil }
func (r *sliceReader) Close() error       { return nil }

func TestSubscription_AdvanceExhaustsCleanly(t *testing.T) {
	cfg, _ := NewSubscriptionConfig("FOO", SecurityTypeEquity, ResolutionDaily)
	reader := &sliceReader{points: []DataPoint{{Symbol: "FOO"}, {Symbol: "FOO"}}}
	sub := NewSubscription(cfg, nil, reader)

	assert.True(t, sub.Advance())
	assert.True(t, sub.Advance())
	assert.False(t, sub.Advance())

	_, ok := sub.Current()
	assert.False(t, ok)
}

func TestSubscriptionConfig_PeriodDurationFallsBackToResolution(t *testing.T) {
	cfg, _ := NewSubscriptionConfig("FOO", SecurityTypeEquity, ResolutionHour)
	d, err := cfg.PeriodDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)
}

func TestSubscriptionConfig_PeriodDurationParsesCustomPeriod(t *testing.T) {
	cfg, _ := NewSubscriptionConfig("FOO", SecurityTypeEquity, ResolutionMinute)
	cfg.CustomPeriod = "4h30m"

	d, err := cfg.PeriodDuration()
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour+30*time.Minute, d)
}

func TestSubscriptionConfig_PeriodDurationRejectsMalformedCustomPeriod(t *testing.T) {
	cfg, _ := NewSubscriptionConfig("FOO", SecurityTypeEquity, ResolutionMinute)
	cfg.CustomPeriod = "not-a-duration"

	_, err := cfg.PeriodDuration()
	assert.Error(t, err)
}

func TestSubscriptionConfig_EqualConsidersCustomPeriod(t *testing.T) {
	a, _ := NewSubscriptionConfig("FOO", SecurityTypeEquity, ResolutionMinute)
	b := a
	b.CustomPeriod = "4h"

	assert.False(t, a.Equal(b))
}
