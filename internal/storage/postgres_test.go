package storage

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/check-export-service/internal/models"
)

var snapshotColumns = []string{"id", "team", "fetched_at", "row_count", "column_names", "row_data"}

func newMockPostgres(t *testing.T) (*PostgreSQLStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "check_snapshots"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewPostgreSQLStorageWithDB(db, "check_snapshots")
	require.NoError(t, err)
	return store, mock
}

// jsonArg matches a jsonb argument by its decoded value
type jsonArg struct {
	want any
}

func (a jsonArg) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	var got any
	if err := json.Unmarshal(b, &got); err != nil {
		return false
	}
	return reflect.DeepEqual(a.want, got)
}

func TestPostgreSQLStorage_StoreSnapshot(t *testing.T) {
	store, mock := newMockPostgres(t)
	at := time.Date(2020, 1, 15, 10, 30, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "check_snapshots" (id, team, fetched_at, row_count, column_names, row_data)`)).
		WithArgs("s1", "my-team", at, 1, `{"project","added_by"}`, jsonArg{want: []any{
			map[string]any{"project": "P", "added_by": nil},
		}}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.StoreSnapshot(context.Background(), models.Snapshot{
		ID:        "s1",
		Team:      "my-team",
		FetchedAt: at,
		RowCount:  1,
		Columns:   []string{"project", "added_by"},
		Rows:      []map[string]any{{"project": "P", "added_by": nil}},
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_GetSnapshotByID(t *testing.T) {
	store, mock := newMockPostgres(t)
	at := time.Date(2020, 1, 15, 10, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, team, fetched_at, row_count, column_names, row_data FROM "check_snapshots" WHERE id=$1`)).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(snapshotColumns).AddRow(
			"s1", "my-team", at, 2, "{project,added_by,count_tasks}",
			[]byte(`[{"project":"P","added_by":null,"count_tasks":1},{"project":"Q","added_by":"Eve","count_tasks":0}]`),
		))

	snapshot, err := store.GetSnapshotByID(context.Background(), "s1")

	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "my-team", snapshot.Team)
	assert.True(t, at.Equal(snapshot.FetchedAt))
	assert.Equal(t, []string{"project", "added_by", "count_tasks"}, snapshot.Columns)
	require.Len(t, snapshot.Rows, 2)
	assert.Equal(t, "P", snapshot.Rows[0]["project"])
	assert.Equal(t, float64(1), snapshot.Rows[0]["count_tasks"])
	assert.Equal(t, "Eve", snapshot.Rows[1]["added_by"])

	v, ok := snapshot.Rows[0]["added_by"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_MissingSnapshot(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY fetched_at DESC LIMIT 1`)).
		WillReturnRows(sqlmock.NewRows(snapshotColumns))

	snapshot, err := store.GetLatestSnapshot(context.Background())

	assert.NoError(t, err)
	assert.Nil(t, snapshot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_GetSnapshots(t *testing.T) {
	store, mock := newMockPostgres(t)
	at := time.Date(2020, 1, 15, 10, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY fetched_at DESC OFFSET $1 LIMIT $2`)).
		WithArgs(5, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "team", "fetched_at", "row_count", "cardinality"}).
			AddRow("s2", "my-team", at.Add(time.Hour), 3, 30).
			AddRow("s1", "my-team", at, 2, 28))

	infos, err := store.GetSnapshots(context.Background(), 10, 5)

	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "s2", infos[0].ID)
	assert.Equal(t, 30, infos[0].Columns)
	assert.Equal(t, 2, infos[1].RowCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLStorage_IngestionStatus(t *testing.T) {
	store, mock := newMockPostgres(t)
	status := models.IngestionStatus{Status: models.StatusFailure, ErrorMessage: "QueryError: rate limited"}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM "check_snapshots_status" WHERE id=$1`)).
		WithArgs(statusKey).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "check_snapshots_status" (id, status)`)).
		WithArgs(statusKey, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM "check_snapshots_status" WHERE id=$1`)).
		WithArgs(statusKey).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).
			AddRow([]byte(`{"status":"failure","error_message":"QueryError: rate limited","rows_ingested":0}`)))
	mock.ExpectClose()

	ctx := context.Background()
	initial, err := store.GetIngestionStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeverRun, initial.Status)

	require.NoError(t, store.UpdateIngestionStatus(ctx, status))

	got, err := store.GetIngestionStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailure, got.Status)
	assert.Equal(t, "QueryError: rate limited", got.ErrorMessage)

	require.NoError(t, store.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
