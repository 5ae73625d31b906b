package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "geo.state_zip3"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_Validation(t *testing.T) {
	rows := [][]any{{"KS"}}

	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "geo.state_zip3"}, rows)
	assert.Error(t, err)

	_, err = BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "geo.state_zip3",
		Columns: []string{"stusps"},
	}, rows)
	assert.Error(t, err)
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := UpsertConfig{
		Table:        "geo.state_zip3",
		Columns:      []string{"stusps", "zip3", "geom"},
		ConflictKeys: []string{"stusps", "zip3"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_geo_state_zip3"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_geo_state_zip3"}, cfg.Columns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "geo"\."state_zip3"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	rows := [][]any{
		{"KS", "660", []byte{0x01}},
		{"KS", "661", []byte{0x02}},
	}
	n, err := BulkUpsert(context.Background(), mock, cfg, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := UpsertConfig{
		Table:        "geo.state_zip3",
		Columns:      []string{"stusps", "zip3"},
		ConflictKeys: []string{"stusps", "zip3"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_geo_state_zip3"}, cfg.Columns).
		WillReturnError(fmt.Errorf("broken pipe"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, cfg, [][]any{{"KS", "660"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}
