package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/techscan/internal/crawler"
)

func newMockStore(t *testing.T) (*ResultStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "page_results")
	require.NoError(t, err)
	return store, mock
}

func TestSaveRunInsertsRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	summary := crawler.RunSummary{
		RunID:      "0190b7a4-9c3e-7a2b-8c4d-5e6f7a8b9c0d",
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
		Workers:    2,
		URLs:       3,
		Captured:   2,
		Failed:     1,
		ResultPath: "result.json",
	}
	results := crawler.AggregateResult{
		{
			URL:          "https://example.com",
			Technologies: []string{"React"},
			Capture: crawler.CaptureInfo{
				Object:     "example.com.txt",
				URI:        "file:///out/example.com.txt",
				Bytes:      42,
				SHA256:     "abc123",
				StatusCode: 200,
				CapturedAt: now,
			},
		},
		{URL: "https://plain.test"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO page_results_runs").
		WithArgs(summary.RunID, summary.StartedAt, summary.FinishedAt, 2, 3, 2, 1, "result.json").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO page_results").
		WithArgs(summary.RunID, 0, "https://example.com", []string{"React"},
			"example.com.txt", "file:///out/example.com.txt", int64(42), "abc123", 200, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO page_results").
		WithArgs(summary.RunID, 1, "https://plain.test", []string{}, "", "", int64(0), "", 0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Write(context.Background(), summary, results))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRollsBackOnError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO page_results_runs").
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := store.SaveRun(context.Background(), crawler.RunSummary{RunID: "run"}, nil)
	require.ErrorContains(t, err, "insert run: duplicate key")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunBeginFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("no conn"))

	err := store.SaveRun(context.Background(), crawler.RunSummary{RunID: "run"}, nil)
	require.ErrorContains(t, err, "begin: no conn")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRequiresRunID(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	require.Error(t, store.SaveRun(context.Background(), crawler.RunSummary{}, nil))

	var nilStore *ResultStore
	require.Error(t, nilStore.SaveRun(context.Background(), crawler.RunSummary{RunID: "x"}, nil))
	require.NoError(t, nilStore.Close())
}

func TestMigrateCreatesTables(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS page_results_runs").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad-name;")
	require.Error(t, err)
	_, err = NewWithPool(nil, "")
	require.Error(t, err)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	assert.Equal(t, "page_results", store.table)
	assert.Equal(t, "postgres", store.Name())
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "postgres_dsn")
}
