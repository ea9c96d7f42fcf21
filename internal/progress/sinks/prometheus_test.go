package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/techscan/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := uuid.New()
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Worker: -1},
		{RunID: runID, TS: now, Stage: progress.StageResourceDone, URL: "https://cdn.test/a.js", Kind: "script"},
		{RunID: runID, TS: now, Stage: progress.StageResourceError, URL: "https://cdn.test/b.css", Kind: "stylesheet"},
		{
			RunID:       runID,
			TS:          now,
			Stage:       progress.StagePageDone,
			URL:         "https://Example.com/app",
			Bytes:       2048,
			StatusClass: progress.Status2xx,
			Techs:       2,
			Dur:         300 * time.Millisecond,
		},
		{RunID: runID, TS: now, Stage: progress.StagePageError, URL: "https://down.test/"},
		{RunID: runID, TS: now, Stage: progress.StageWorkerDone},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Worker: -1, Dur: 2 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	assert.InDelta(t, 1.0, testutil.ToFloat64(sink.runsStarted), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(sink.workersDone), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(sink.pages.WithLabelValues("example.com", "2xx")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(sink.pages.WithLabelValues("down.test", "error")), 1e-9)
	assert.InDelta(t, 2048.0, testutil.ToFloat64(sink.pageBytes.WithLabelValues("example.com")), 1e-9)
	assert.InDelta(t, 2.0, testutil.ToFloat64(sink.techsMatched), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(sink.resources.WithLabelValues("script", "fetched")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(sink.resources.WithLabelValues("stylesheet", "failed")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "techscan_run_duration_seconds"))
	require.NoError(t, sink.Close(context.Background()))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
