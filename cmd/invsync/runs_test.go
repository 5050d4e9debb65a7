package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
	"github.com/huangc28/kikichoice-be/internal/ui"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.Local)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-06-01", time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local)},
		{"2025-06-01T08:30", time.Date(2025, 6, 1, 8, 30, 0, 0, time.Local)},
		{"36h", now.Add(-36 * time.Hour)},
		{"90m", now.Add(-90 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSince(tt.in, now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	got, err := parseSince("2025-06-01T08:30:00Z", now)
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC).Equal(got))

	got, err = parseSince("yesterday", now)
	require.NoError(t, err)
	assert.True(t, got.Before(now))

	_, err = parseSince("whenever", now)
	assert.Error(t, err)
}

func TestRunTable(t *testing.T) {
	ui.DisableColor()
	started := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)

	rows := runTable{
		{ID: "r1", Pipeline: "products", Status: "succeeded", Attempts: 1,
			Result: schema.RunResult{Inserted: 2, Updated: 3, Total: 5}, StartedAt: started, FinishedAt: &finished},
		{ID: "r2", Pipeline: "variants", Status: "running", StartedAt: started},
	}.Rows()

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"r1", "products", "succeeded", "1", "2", "3", "5"}, rows[0][:7])
	assert.Equal(t, "1.5s", rows[0][8])
	assert.Equal(t, "-", rows[1][8])
	assert.Len(t, runTable{}.Headers(), len(rows[0]))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
