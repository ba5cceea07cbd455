package vision

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/attention.report/internal/db"
)

func newTestStore(t *testing.T) *ReportStore {
	t.Helper()
	database, err := db.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewReportStore(database.DB)
}

func sampleReport(events []ViolationEvent) *Report {
	return &Report{
		Gestures:       BuildGestureGroups(events),
		ThresholdsUsed: DefaultThresholds(),
		Metadata: ProcessingMetadata{
			ProcessingTimeSec: 3,
			VideoDurationSec:  120,
			FramesProcessed:   3600,
		},
	}
}

func TestSaveAndGetReport(t *testing.T) {
	store := newTestStore(t)

	events := []ViolationEvent{
		{Category: HeadLeft, StartTime: 12.3, Duration: 1.2, Intensity: 34.6},
		{Category: GazeRight, StartTime: 65.5, Duration: 0.8, Intensity: 9.4},
	}
	report := sampleReport(events)
	require.NoError(t, store.SaveReport("session-1", report, events))

	stored, err := store.GetReport("session-1")
	require.NoError(t, err)
	assert.Equal(t, "session-1", stored.SessionID)
	assert.NotZero(t, stored.ReportID)
	assert.NotEmpty(t, stored.CreatedAt)
	assert.Equal(t, report.Metadata, stored.Report.Metadata)
	assert.Equal(t, report.ThresholdsUsed, stored.Report.ThresholdsUsed)
	require.Len(t, stored.Report.Gestures, 2)
}

func TestGetReportMissingSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetReport("no-such-session")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSaveReportDuplicateSessionRejected(t *testing.T) {
	store := newTestStore(t)

	report := sampleReport(nil)
	require.NoError(t, store.SaveReport("session-1", report, nil))
	assert.Error(t, store.SaveReport("session-1", report, nil))
}

func TestListReportsNewestFirst(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveReport(id, sampleReport(nil), nil))
	}

	all, err := store.ListReports(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].SessionID)
	assert.Equal(t, "a", all[2].SessionID)

	limited, err := store.ListReports(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListEventsOrderedByStartTime(t *testing.T) {
	store := newTestStore(t)

	events := []ViolationEvent{
		{Category: GazeRight, StartTime: 65.5, Duration: 0.8, Intensity: 9.4},
		{Category: HeadLeft, StartTime: 12.3, Duration: 1.2, Intensity: 34.6},
		{Category: FaceMissing, StartTime: 40.0, Duration: 2.0},
	}
	require.NoError(t, store.SaveReport("session-1", sampleReport(events), events))

	got, err := store.ListEvents("session-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, HeadLeft, got[0].Category)
	assert.Equal(t, FaceMissing, got[1].Category)
	assert.Equal(t, GazeRight, got[2].Category)

	empty, err := store.ListEvents("other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEventSummaryCountsPerCategory(t *testing.T) {
	store := newTestStore(t)

	events := []ViolationEvent{
		{Category: GazeRight, StartTime: 1.0, Duration: 0.5, Intensity: 9.0},
		{Category: GazeRight, StartTime: 5.0, Duration: 0.3, Intensity: 10.0},
		{Category: MultipleFaces, StartTime: 8.0, Duration: 1.0},
	}
	require.NoError(t, store.SaveReport("session-1", sampleReport(events), events))

	summary, err := store.EventSummary("session-1")
	require.NoError(t, err)
	assert.Equal(t, map[ViolationCategory]int{
		GazeRight:     2,
		MultipleFaces: 1,
	}, summary)
}
