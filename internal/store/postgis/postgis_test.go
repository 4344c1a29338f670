package postgis

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/zoning-relay/internal/core/config"
	"github.com/mohammed-shakir/zoning-relay/internal/core/geo"
	"github.com/mohammed-shakir/zoning-relay/internal/store"
)

type fakeRow struct {
	val string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.val
	return nil
}

type fakeDB struct {
	row     fakeRow
	lastSQL string
	lastArg any
	pingErr error
	closed  bool
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL = sql
	if len(args) > 0 {
		f.lastArg = args[0]
	}
	return f.row
}

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }
func (f *fakeDB) Close()                     { f.closed = true }

func storeCfg() config.StoreCfg {
	return config.StoreCfg{Function: "intersect_zonasi", Encoding: config.EncodingGeoJSON}
}

func TestIntersect_RunsFunctionWithExpression(t *testing.T) {
	db := &fakeDB{row: fakeRow{val: `[{"zonasi_kode":"K-2"}]`}}
	s, err := New(nil, db, storeCfg())
	require.NoError(t, err)

	p, err := geo.ParsePolygon([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`))
	require.NoError(t, err)

	out, err := s.Intersect(context.Background(), p)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"zonasi_kode":"K-2"}]`, string(out))
	assert.Equal(t, Query("intersect_zonasi"), db.lastSQL)
	assert.Equal(t, "ST_GeomFromGeoJSON('"+string(p.GeoJSON)+"')", db.lastArg)
}

func TestIntersect_PgErrorBecomesStoreError(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: &pgconn.PgError{Code: "42883", Message: "function intersect_zonasi(text) does not exist"}}}
	s, _ := New(nil, db, storeCfg())
	p, _ := geo.ParsePolygon([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`))

	_, err := s.Intersect(context.Background(), p)
	var se *store.Error
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Message, "does not exist")
}

func TestNew_RejectsUnsafeFunction(t *testing.T) {
	cfg := storeCfg()
	cfg.Function = "f(); drop table x"
	_, err := New(nil, &fakeDB{}, cfg)
	require.Error(t, err)
}

func TestPingAndClose(t *testing.T) {
	db := &fakeDB{pingErr: errors.New("down")}
	s, _ := New(nil, db, storeCfg())
	assert.EqualError(t, s.Ping(context.Background()), "down")
	s.Close()
	assert.True(t, db.closed)
}
