package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/mapviz/internal/domain"
)

func openTest(t *testing.T) *History {
	t.Helper()
	h, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func run(id, pipeline string, status domain.RunStatus, started time.Time) domain.Run {
	return domain.Run{
		ID:         id,
		Pipeline:   pipeline,
		Trigger:    domain.TriggerSchedule,
		Status:     status,
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
	}
}

func TestHistory_RecordAndRecent(t *testing.T) {
	h := openTest(t)
	ctx := context.Background()
	base := time.Date(2021, 3, 9, 6, 30, 0, 0, time.UTC)

	full := domain.Run{
		ID:         "run-1",
		Pipeline:   "covid",
		Trigger:    domain.TriggerStartup,
		Status:     domain.RunSuccess,
		StartedAt:  base,
		FinishedAt: base.Add(1500 * time.Millisecond),
		Dataset:    "data/covid_03-08-2021.csv",
		Fetched:    true,
		Artifact:   "maps/COVID-19_viz.html",
		Items:      250,
		Matched:    190,
		Unmatched:  3,
	}
	require.NoError(t, h.RecordRun(ctx, full))
	require.NoError(t, h.RecordRun(ctx, run("run-2", "gdp", domain.RunFailed, base.Add(time.Minute))))
	require.NoError(t, h.RecordRun(ctx, run("run-3", "covid", domain.RunSkipped, base.Add(2*time.Minute))))

	all, err := h.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"run-3", "run-2", "run-1"}, []string{all[0].ID, all[1].ID, all[2].ID})

	covid, err := h.Recent(ctx, "covid", 10)
	require.NoError(t, err)
	require.Len(t, covid, 2)
	if diff := cmp.Diff(full, covid[1]); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}

	limited, err := h.Recent(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestHistory_RecordReplacesSameID(t *testing.T) {
	h := openTest(t)
	ctx := context.Background()
	started := time.Date(2021, 3, 9, 6, 30, 0, 0, time.UTC)

	r := run("run-1", "covid", domain.RunFailed, started)
	require.NoError(t, h.RecordRun(ctx, r))
	r.Status = domain.RunSuccess
	require.NoError(t, h.RecordRun(ctx, r))

	runs, err := h.Recent(ctx, "covid", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunSuccess, runs[0].Status)
}

func TestHistory_LastSuccess(t *testing.T) {
	h := openTest(t)
	ctx := context.Background()
	base := time.Date(2021, 3, 9, 0, 0, 0, 0, time.UTC)

	_, ok, err := h.LastSuccess(ctx, "covid")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, h.RecordRun(ctx, run("a", "covid", domain.RunSuccess, base)))
	require.NoError(t, h.RecordRun(ctx, run("b", "covid", domain.RunSuccess, base.Add(24*time.Hour))))
	require.NoError(t, h.RecordRun(ctx, run("c", "covid", domain.RunFailed, base.Add(48*time.Hour))))

	last, ok, err := h.LastSuccess(ctx, "covid")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", last.ID)
}

func TestHistory_RejectsEmptyID(t *testing.T) {
	h := openTest(t)
	require.Error(t, h.RecordRun(context.Background(), domain.Run{Pipeline: "covid"}))
}

func TestHistory_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapviz.db")
	ctx := context.Background()

	h, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, h.RecordRun(ctx, run("run-1", "gdp", domain.RunSuccess, time.Now().UTC())))
	require.NoError(t, h.CheckReadiness(ctx))
	require.NoError(t, h.Close())

	h, err = Open(path)
	require.NoError(t, err)
	defer h.Close()
	runs, err := h.Recent(ctx, "gdp", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
}
