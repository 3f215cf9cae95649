package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hreflang-crawler/internal/crawler"
)

func sampleTable() *crawler.ResultTable {
	table := crawler.NewResultTable([]string{"https://ex.com/a", "https://ex.com/b"})
	table.Set("https://ex.com/a", crawler.Success(crawler.HreflangMap{
		"fr": "https://ex.com/a-fr",
		"en": "https://ex.com/a-en",
	}))
	table.Set("https://ex.com/b", crawler.Failure(errors.New("status 503")))
	return table
}

func sampleBatch() Batch {
	start := time.Unix(1700000000, 0).UTC()
	return Batch{
		ID:         "0190f1d2-batch",
		Source:     "https://ex.com/sitemap.xml",
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		ReportURI:  "gs://bucket/hreflang_map.csv",
	}
}

func TestSaveBatchInsertsRowsInOrder(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResultStoreWithPool(mock, "")
	require.NoError(t, err)

	b := sampleBatch()
	failure := "status 503"
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO hreflang_results_batches").
		WithArgs(b.ID, b.Source, b.StartedAt, b.FinishedAt, b.ReportURI, 1, 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO hreflang_results ").
		WithArgs(b.ID, 0, "https://ex.com/a", StatusOK,
			[]byte(`{"en":"https://ex.com/a-en","fr":"https://ex.com/a-fr"}`), (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO hreflang_results ").
		WithArgs(b.ID, 1, "https://ex.com/b", StatusFailed, []byte(nil), &failure).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveBatch(context.Background(), b, sampleTable()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveBatchRollsBackOnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResultStoreWithPool(mock, "custom")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO custom_batches").
		WillReturnError(errors.New("relation does not exist"))
	mock.ExpectRollback()

	err = store.SaveBatch(context.Background(), sampleBatch(), sampleTable())
	require.ErrorContains(t, err, "insert batch")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveBatchValidates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResultStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, store.SaveBatch(context.Background(), Batch{}, nil))

	var nilStore *ResultStore
	require.Error(t, nilStore.SaveBatch(context.Background(), sampleBatch(), nil))
	nilStore.Close()
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResultStoreWithPool(mock, "")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS hreflang_results_batches").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableNameValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewResultStoreWithPool(mock, "results; DROP TABLE x")
	require.Error(t, err)
	_, err = NewResultStoreWithPool(nil, "")
	require.Error(t, err)
	_, err = NewResultStore(context.Background(), Config{})
	require.Error(t, err)
}
