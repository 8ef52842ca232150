package conference_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/go-tdmmix/internal/conference"
)

func noneInUse(int) bool { return false }

func TestGetOrCreateAllocatesLowestAlias(t *testing.T) {
	tbl, err := conference.NewTable(16, 4)
	require.NoError(t, err)

	a, created, err := tbl.GetOrCreate(5)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, a)

	again, created, err := tbl.GetOrCreate(5)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a, again)

	b, _, err := tbl.GetOrCreate(9)
	require.NoError(t, err)
	assert.Equal(t, 2, b)
	assert.Equal(t, 2, tbl.High())

	conf, ok := tbl.Conference(b)
	require.True(t, ok)
	assert.Equal(t, 9, conf)
}

func TestGetOrCreateRejectsOutOfRange(t *testing.T) {
	tbl, err := conference.NewTable(16, 4)
	require.NoError(t, err)

	for _, conf := range []int{0, -1, 17} {
		_, _, err := tbl.GetOrCreate(conf)
		assert.ErrorIs(t, err, conference.ErrInvalidConference)
	}
	assert.Equal(t, 0, tbl.High())
}

func TestExhaustionChangesNothing(t *testing.T) {
	tbl, err := conference.NewTable(16, 2)
	require.NoError(t, err)

	_, _, err = tbl.GetOrCreate(1)
	require.NoError(t, err)
	_, _, err = tbl.GetOrCreate(2)
	require.NoError(t, err)

	_, _, err = tbl.GetOrCreate(3)
	assert.ErrorIs(t, err, conference.ErrExhausted)
	_, ok := tbl.Lookup(3)
	assert.False(t, ok)
	assert.Equal(t, 2, tbl.Active())
	assert.Equal(t, 2, tbl.High())
}

func TestReleaseRecomputesHigh(t *testing.T) {
	tbl, err := conference.NewTable(16, 4)
	require.NoError(t, err)

	for _, conf := range []int{3, 4, 5} {
		_, _, err := tbl.GetOrCreate(conf)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, tbl.High())

	assert.False(t, tbl.ReleaseIfUnreferenced(5, func(int) bool { return true }))
	assert.True(t, tbl.ReleaseIfUnreferenced(4, noneInUse))
	assert.Equal(t, 3, tbl.High(), "a hole below the top keeps the watermark")

	assert.True(t, tbl.ReleaseIfUnreferenced(5, noneInUse))
	assert.Equal(t, 1, tbl.High())

	assert.False(t, tbl.ReleaseIfUnreferenced(5, noneInUse), "already released")
	assert.True(t, tbl.ReleaseIfUnreferenced(3, noneInUse))
	assert.Equal(t, 0, tbl.High())

	// The freed aliases are reused lowest first.
	a, created, err := tbl.GetOrCreate(5)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, a)
}

func TestFirstUnaliasedScansDownward(t *testing.T) {
	tbl, err := conference.NewTable(4, 4)
	require.NoError(t, err)

	conf, ok := tbl.FirstUnaliased()
	require.True(t, ok)
	assert.Equal(t, 4, conf)

	_, _, err = tbl.GetOrCreate(4)
	require.NoError(t, err)
	_, _, err = tbl.GetOrCreate(3)
	require.NoError(t, err)
	conf, ok = tbl.FirstUnaliased()
	require.True(t, ok)
	assert.Equal(t, 2, conf)

	_, _, err = tbl.GetOrCreate(2)
	require.NoError(t, err)
	_, _, err = tbl.GetOrCreate(1)
	require.NoError(t, err)
	_, ok = tbl.FirstUnaliased()
	assert.False(t, ok)
}

func TestNewTableRejectsBadBounds(t *testing.T) {
	_, err := conference.NewTable(0, 4)
	assert.Error(t, err)
	_, err = conference.NewTable(4, 0)
	assert.Error(t, err)
}
