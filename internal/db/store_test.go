package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every Store implementation shares.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	v, err := st.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, st.Set(ctx, "a", []byte(`{"x":1}`)))
	v, err = st.Get(ctx, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(v))

	require.NoError(t, st.Set(ctx, "a", []byte(`2`)))
	v, err = st.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))

	require.NoError(t, st.SetMany(ctx, map[string][]byte{"b": []byte(`"b"`), "c": []byte(`"c"`)}))
	for k, want := range map[string]string{"b": `"b"`, "c": `"c"`} {
		v, err = st.Get(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, want, string(v))
	}

	require.NoError(t, st.Remove(ctx, "a"))
	v, err = st.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, v)
	require.NoError(t, st.Remove(ctx, "a"))
}

func TestMemoryStore(t *testing.T) {
	st := NewMemoryStore()
	exerciseStore(t, st)
	require.NoError(t, st.Close())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, st.Set(ctx, "k", buf))
	buf[0] = 'z'
	v, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
}

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	require.NoError(t, RunMigrations(context.Background(), sqlDB, ""))
	st, err := NewSQLiteStore(sqlDB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, openTestSQLite(t))
}

func TestHealth(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, Health(ctx, NewMemoryStore()))

	st := openTestSQLite(t)
	assert.NoError(t, Health(ctx, st))
	require.NoError(t, st.db.Close())
	assert.Error(t, Health(ctx, st))
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	st := openTestSQLite(t)
	require.NoError(t, RunMigrations(context.Background(), st.db, ""))
	var n int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteSetManyRollsBackOnCancel(t *testing.T) {
	st := openTestSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := st.SetMany(ctx, map[string][]byte{"x": []byte("1")})
	require.Error(t, err)
	v, err := st.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, st)

	st, err = Open(ctx, Options{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	exerciseStore(t, st)
	require.NoError(t, st.Close())

	_, err = Open(ctx, Options{Driver: DriverSQLite})
	assert.Error(t, err)
	_, err = Open(ctx, Options{Driver: "etcd"})
	assert.Error(t, err)
}

func TestNamespace(t *testing.T) {
	base := NewMemoryStore()
	ctx := context.Background()
	a := Namespace(base, ProfilePrefix("u1"))
	b := Namespace(base, ProfilePrefix("u2"))

	require.NoError(t, a.Set(ctx, "footprint", []byte("1")))
	require.NoError(t, b.SetMany(ctx, map[string][]byte{"footprint": []byte("2")}))

	v, err := a.Get(ctx, "footprint")
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))
	v, err = base.Get(ctx, "profile:u2:footprint")
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))

	require.NoError(t, a.Remove(ctx, "footprint"))
	v, err = a.Get(ctx, "footprint")
	require.NoError(t, err)
	assert.Nil(t, v)
}
