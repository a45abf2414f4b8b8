package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
)

func TestPostgresPersistUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pg, err := NewPostgresWithPool(mock, "hot_snapshots")
	require.NoError(t, err)

	snap := testSnapshot("2025-11-03", 7, hotspot.OriginRemote)
	topicsJSON := `[{"rank":1,"title":"话题一","hot":100,"url":"https://s/a","ads":false,"readCount":0,"discussCount":0,"origin":"remote"},{"rank":2,"title":"话题二","hot":90,"url":"https://s/b","ads":false,"readCount":0,"discussCount":0,"origin":"remote"}]`

	mock.ExpectExec("INSERT INTO hot_snapshots").
		WithArgs(snap.Date, snap.Hour, snap.GeneratedAt, "remote", []byte(topicsJSON)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, pg.Persist(context.Background(), snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadReturnsSnapshot(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pg, err := NewPostgresWithPool(mock, "hot_snapshots")
	require.NoError(t, err)

	generatedAt := time.Date(2025, 11, 3, 7, 31, 0, 0, time.UTC)
	topicsJSON := []byte(`[{"rank":1,"title":"话题一","hot":100,"url":"https://s/a","origin":"fallback"}]`)

	mock.ExpectQuery("SELECT generated_at, source, topics").
		WithArgs("2025-11-03", 7).
		WillReturnRows(pgxmock.NewRows([]string{"generated_at", "source", "topics"}).
			AddRow(generatedAt, "fallback", topicsJSON))

	snap, err := pg.Load(context.Background(), "2025-11-03", 7)
	require.NoError(t, err)
	require.Equal(t, "2025-11-03", snap.Date)
	require.Equal(t, 7, snap.Hour)
	require.Equal(t, generatedAt, snap.GeneratedAt)
	require.Equal(t, hotspot.OriginFallback, snap.Source)
	require.Len(t, snap.Topics, 1)
	require.Equal(t, "话题一", snap.Topics[0].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadAbsentSlot(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pg, err := NewPostgresWithPool(mock, "hot_snapshots")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT generated_at, source, topics").
		WithArgs("2025-11-03", 7).
		WillReturnError(pgx.ErrNoRows)

	_, err = pg.Load(context.Background(), "2025-11-03", 7)
	require.ErrorIs(t, err, hotspot.ErrNotArchived)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRejectsInvalidTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresWithPool(mock, "hot; DROP TABLE users")
	require.Error(t, err)
}

func TestPostgresDefaultsTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pg, err := NewPostgresWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "hot_snapshots", pg.table)
}
