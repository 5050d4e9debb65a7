package loadtest

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBench(t *testing.T, n int) *Bench {
	t.Helper()
	b, err := Setup(context.Background(), filepath.Join(t.TempDir(), "bench.db"), n)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSetup(t *testing.T) {
	b := setupBench(t, 250)

	n, err := b.DB.ProductCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	assert.NoError(t, b.Verify(context.Background()), "fresh bench should verify")
}

func TestSetup_Invalid(t *testing.T) {
	_, err := Setup(context.Background(), filepath.Join(t.TempDir(), "bench.db"), 0)
	assert.Error(t, err)
}

func TestRunUpserts(t *testing.T) {
	b := setupBench(t, 250)

	stats, err := b.RunUpserts(context.Background(), 100, 2, 7)
	require.NoError(t, err)

	// 250 records in batches of 100 is 3 statements per round.
	assert.Equal(t, 6, stats.Operations)
	assert.Equal(t, 500, stats.Records)
	assert.LessOrEqual(t, stats.P50, stats.P99)
	assert.LessOrEqual(t, stats.Min, stats.Max)

	assert.NoError(t, b.Verify(context.Background()), "stock does not match applied deltas")
}

func TestRunUpserts_BatchSizeDoesNotChangeResult(t *testing.T) {
	totals := make(map[int]map[string]int)
	for _, size := range []int{1, 7, 100, 1000} {
		b := setupBench(t, 120)
		_, err := b.RunUpserts(context.Background(), size, 1, 99)
		require.NoError(t, err, "batch size %d", size)

		found, err := b.DB.FindBySKUs(context.Background(), b.SKUs)
		require.NoError(t, err)
		stock := make(map[string]int, len(found))
		for sku, e := range found {
			stock[sku] = e.StockCount
		}
		totals[size] = stock
	}

	for _, size := range []int{7, 100, 1000} {
		assert.Equal(t, totals[1], totals[size], "batch size %d", size)
	}
}

func TestRunConcurrentLookups(t *testing.T) {
	b := setupBench(t, 200)

	stats, err := b.RunConcurrentLookups(context.Background(), 8, 5, 20)
	require.NoError(t, err)
	assert.Equal(t, 40, stats.Operations)
	assert.Zero(t, stats.Errors)
}

func TestComputeLatencyStats(t *testing.T) {
	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}

	s := ComputeLatencyStats(durations)
	assert.Equal(t, time.Millisecond, s.Min)
	assert.Equal(t, 100*time.Millisecond, s.Max)
	assert.Equal(t, 51*time.Millisecond, s.P50)
	assert.Equal(t, 96*time.Millisecond, s.P95)
	assert.Equal(t, 100*time.Millisecond, s.P99)
	assert.Equal(t, 50500*time.Microsecond, s.Mean)
	// Input is left unsorted.
	assert.Equal(t, 100*time.Millisecond, durations[0], "ComputeLatencyStats modified its input")

	assert.Zero(t, ComputeLatencyStats(nil).Operations)
}

func TestFprint(t *testing.T) {
	var buf bytes.Buffer
	s := &LatencyStats{Operations: 3, Records: 300, Elapsed: time.Second}
	s.Fprint(&buf)
	assert.Contains(t, buf.String(), "300 (300/s)")
}
