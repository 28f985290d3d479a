package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInspectReportsMetadataWithoutWriting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keystore.db")
	ks, err := OpenSQLite(path, SQLiteOptions{Argon2: testArgon2Params()})
	require.NoError(t, err)
	require.NoError(t, ks.Unlock([]byte("pw")))
	require.Equal(t, StatusSuccess, ks.Add(genericItem("a", "1")))
	require.Equal(t, StatusSuccess, ks.Add(genericItem("b", "2")))
	id := ks.ID()
	require.NoError(t, ks.Close())

	require.NoError(t, os.Chmod(path, 0o640))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	info, err := Inspect(path)
	require.NoError(t, err)
	require.Equal(t, Info{ID: id, SchemaVersion: CurrentSchemaVersion(), Items: 2, Initialized: true}, info)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)
	st, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o640), st.Mode().Perm())
}

func TestInspectUninitializedKeystore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keystore.db")
	ks, err := OpenSQLite(path, SQLiteOptions{Argon2: testArgon2Params()})
	require.NoError(t, err)
	id := ks.ID()
	require.NoError(t, ks.Close())

	info, err := Inspect(path)
	require.NoError(t, err)
	require.Equal(t, id, info.ID)
	require.False(t, info.Initialized)
	require.Zero(t, info.Items)
}

func TestInspectNeverCreatesMissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing.db")
	_, err := Inspect(path)
	require.Error(t, err)

	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestInspectRejectsForeignFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.db")
	require.NoError(t, os.WriteFile(path, []byte("plain text, not a database"), 0o600))

	_, err := Inspect(path)
	require.Error(t, err)
}
