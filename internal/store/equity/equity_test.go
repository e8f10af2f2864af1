package equity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "equity.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, Snapshot{
			Time:          base.Add(time.Duration(i) * time.Minute),
			Equity:        50000 - float64(i)*100,
			DailyPnL:      -float64(i) * 100,
			RunState:      "running",
			OpenPositions: i,
		}))
	}

	got, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 49800.0, got[0].Equity)
	assert.Equal(t, 49600.0, got[2].Equity)
	assert.True(t, got[2].Time.Equal(base.Add(4*time.Minute)))
	assert.Equal(t, 4, got[2].OpenPositions)
}

func TestClosedStoreErrors(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "equity.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Error(t, s.Record(context.Background(), Snapshot{Equity: 1}))
	_, err = s.Recent(context.Background(), 1)
	assert.Error(t, err)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
