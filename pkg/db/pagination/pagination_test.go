package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitClamps(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 10_000}.Limit())
	assert.Equal(t, 7, Pagination{PageSize: 7}.Limit())
}

func TestPageBuildsNextToken(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	items := []int{1, 2, 3}

	page, info := Page(items, 2, func(v int) Cursor { return CursorFor("1", now) })
	assert.Equal(t, []int{1, 2}, page)
	require.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	ts, err := cursor.CreatedAtTime()
	require.NoError(t, err)
	assert.True(t, ts.Equal(now))
}

func TestPageWithoutMore(t *testing.T) {
	page, info := Page([]int{1}, 2, func(int) Cursor { return Cursor{} })
	assert.Len(t, page, 1)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}
