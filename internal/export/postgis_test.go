package export

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishOpts() PublishOptions {
	return PublishOptions{
		Schema:    "geo",
		Table:     "state_zip3",
		SRID:      4269,
		BatchSize: 2,
	}
}

func expectEnsureTable(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "geo"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "geo"\."state_zip3"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
}

func TestPublish_Replace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	opts := publishOpts()
	opts.Replace = true

	expectEnsureTable(mock)
	mock.ExpectExec(`TRUNCATE "geo"\."state_zip3"`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"geo", "state_zip3"}, publishColumns).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"geo", "state_zip3"}, publishColumns).WillReturnResult(1)

	n, err := Publish(context.Background(), mock, opts, testDissolved(t))
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectEnsureTable(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_geo_state_zip3"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_geo_state_zip3"}, publishColumns).
		WillReturnResult(3)
	mock.ExpectExec(`INSERT INTO "geo"\."state_zip3"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := Publish(context.Background(), mock, publishOpts(), testDissolved(t))
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_SchemaError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "geo"`).
		WillReturnError(assert.AnError)

	_, err = Publish(context.Background(), mock, publishOpts(), testDissolved(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create schema")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEncodeEWKB_PolygonPromotedToMulti(t *testing.T) {
	g, err := mustWKT(t, squareWKT(0, 0, 1, 1)).Geom()
	require.NoError(t, err)

	data, err := encodeEWKB(g, 4269)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	// EWKB little-endian MultiPolygon with SRID flag: type word 0x20000006.
	assert.Equal(t, byte(0x01), data[0])
	assert.Equal(t, byte(0x06), data[1])
	assert.Equal(t, byte(0x20), data[4])
}
