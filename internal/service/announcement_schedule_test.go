package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-announcement-api/internal/dto"
	appErrors "github.com/noah-isme/sma-announcement-api/pkg/errors"
)

func TestResolveSchedulePublishesWhenDue(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	equal := now

	for name, requested := range map[string]*time.Time{"absent": nil, "past": &past, "equal": &equal} {
		t.Run(name, func(t *testing.T) {
			state := ResolveSchedule(requested, now)
			assert.True(t, state.IsPublished)
			require.NotNil(t, state.PublishedAt)
			assert.True(t, state.PublishedAt.Equal(now))
			assert.Nil(t, state.ScheduledAt)
		})
	}
}

func TestResolveScheduleArmsFutureTimes(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	for _, delta := range []time.Duration{time.Second, time.Minute, 72 * time.Hour} {
		requested := now.Add(delta)
		state := ResolveSchedule(&requested, now)
		assert.False(t, state.IsPublished)
		assert.Nil(t, state.PublishedAt)
		require.NotNil(t, state.ScheduledAt)
		assert.True(t, state.ScheduledAt.Equal(requested))
	}
}

func TestResolveScheduleNormalisesToUTC(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	now := time.Date(2026, 10, 18, 16, 0, 0, 0, jakarta)
	requested := now.Add(time.Hour)

	state := ResolveSchedule(&requested, now)
	require.NotNil(t, state.ScheduledAt)
	assert.Equal(t, time.UTC, state.ScheduledAt.Location())
	assert.Equal(t, 10, state.ScheduledAt.Hour())
}

func TestResolvePatchSchedule(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	omitted, err := resolvePatchSchedule(dto.Optional[string]{}, now)
	require.NoError(t, err)
	assert.Nil(t, omitted)

	nulled, err := resolvePatchSchedule(dto.Null[string](), now)
	require.NoError(t, err)
	require.NotNil(t, nulled)
	assert.True(t, nulled.IsPublished)

	future, err := resolvePatchSchedule(dto.Some("2026-10-18T10:00:00+07:00"), now)
	require.NoError(t, err)
	require.NotNil(t, future)
	assert.True(t, future.IsPublished, "03:00 UTC is before now")

	later, err := resolvePatchSchedule(dto.Some("2026-10-19T08:00:00.000Z"), now)
	require.NoError(t, err)
	assert.False(t, later.IsPublished)
	require.NotNil(t, later.ScheduledAt)
	assert.True(t, later.ScheduledAt.Equal(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)))

	_, err = resolvePatchSchedule(dto.Some("tomorrow"), now)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestScheduleRejectsBlankTimes(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	for _, raw := range []string{"", "   "} {
		state, err := resolvePatchSchedule(dto.Some(raw), now)
		assert.ErrorIs(t, err, appErrors.ErrValidation, "patch %q", raw)
		assert.Nil(t, state)

		_, err = resolveCreateSchedule(&raw, now)
		assert.ErrorIs(t, err, appErrors.ErrValidation, "create %q", raw)
	}
}
