package credential

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocklist_ResetsOnNewDay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	// 15:30 UTC is 23:30 in Shanghai.
	now := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	b := NewBlocklist(loc)
	b.now = func() time.Time { return now }

	b.Add("42")
	assert.True(t, b.Contains("42"))
	assert.Equal(t, "2024-03-01", b.Day())

	// 16:30 UTC is already the next day in Shanghai.
	now = now.Add(time.Hour)
	assert.Equal(t, "2024-03-02", b.Day())
	assert.False(t, b.Contains("42"))
	assert.Empty(t, b.IDs())
}

func TestBlocklist_SameDayInUTCButNotInZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	b := NewBlocklist(loc)
	b.now = func() time.Time { return now }

	b.Add("a")
	now = time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC)
	assert.False(t, b.Contains("a"))
}

func TestBlocklist_RemoveAndIDs(t *testing.T) {
	b := NewBlocklist(time.UTC)

	b.Add("b")
	b.Add("a")
	b.Add("a")
	assert.Equal(t, []string{"a", "b"}, b.IDs())

	b.Remove("a")
	assert.Equal(t, []string{"b"}, b.IDs())

	b.Remove("missing")
	assert.Equal(t, []string{"b"}, b.IDs())
}
