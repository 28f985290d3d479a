package keystore

import (
	"path/filepath"
	"testing"

	"github.com/amanthanvi/keystash/internal/crypto"
	"github.com/stretchr/testify/require"
)

func TestClientContract(t *testing.T) {
	t.Parallel()

	clients := map[string]func(t *testing.T) Client{
		"memory": func(t *testing.T) Client { return NewMemory("") },
		"sqlite": func(t *testing.T) Client { return newUnlockedSQLite(t) },
	}

	for name, newClient := range clients {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("add then find", func(t *testing.T) {
				c := newClient(t)
				require.Equal(t, StatusSuccess, c.Add(genericItem("token", "abc")))

				data, st := c.FindOne(findQuery("token"))
				require.Equal(t, StatusSuccess, st)
				require.Equal(t, []byte("abc"), data)
			})

			t.Run("duplicate add is rejected", func(t *testing.T) {
				c := newClient(t)
				require.Equal(t, StatusSuccess, c.Add(genericItem("token", "abc")))
				require.Equal(t, StatusDuplicateItem, c.Add(genericItem("token", "def")))
			})

			t.Run("find missing reports not found", func(t *testing.T) {
				c := newClient(t)
				data, st := c.FindOne(findQuery("missing"))
				require.Equal(t, StatusItemNotFound, st)
				require.Nil(t, data)
			})

			t.Run("delete by account", func(t *testing.T) {
				c := newClient(t)
				require.Equal(t, StatusSuccess, c.Add(genericItem("a", "1")))
				require.Equal(t, StatusSuccess, c.Add(genericItem("b", "2")))

				require.Equal(t, StatusSuccess, c.Delete(Query{Class: ClassGenericPassword, Account: "a"}))
				require.Equal(t, StatusItemNotFound, c.Delete(Query{Class: ClassGenericPassword, Account: "a"}))

				_, st := c.FindOne(findQuery("b"))
				require.Equal(t, StatusSuccess, st)
			})

			t.Run("delete by class clears everything", func(t *testing.T) {
				c := newClient(t)
				require.Equal(t, StatusSuccess, c.Add(genericItem("a", "1")))
				require.Equal(t, StatusSuccess, c.Add(genericItem("b", "2")))

				require.Equal(t, StatusSuccess, c.Delete(Query{Class: ClassGenericPassword}))
				require.Equal(t, StatusItemNotFound, c.Delete(Query{Class: ClassGenericPassword}))
			})

			t.Run("synchronizable items need an explicit query", func(t *testing.T) {
				c := newClient(t)
				item := genericItem("synced", "x")
				item.Synchronizable = true
				require.Equal(t, StatusSuccess, c.Add(item))

				_, st := c.FindOne(findQuery("synced"))
				require.Equal(t, StatusItemNotFound, st)

				q := findQuery("synced")
				q.Synchronizable = SyncAny
				data, st := c.FindOne(q)
				require.Equal(t, StatusSuccess, st)
				require.Equal(t, []byte("x"), data)

				q.Synchronizable = SyncOn
				_, st = c.FindOne(q)
				require.Equal(t, StatusSuccess, st)
			})

			t.Run("access groups scope queries", func(t *testing.T) {
				c := newClient(t)
				item := genericItem("shared", "team")
				item.AccessGroup = "team.example"
				require.Equal(t, StatusSuccess, c.Add(item))
				require.Equal(t, StatusSuccess, c.Add(genericItem("shared", "default")))

				q := findQuery("shared")
				q.AccessGroup = "team.example"
				data, st := c.FindOne(q)
				require.Equal(t, StatusSuccess, st)
				require.Equal(t, []byte("team"), data)

				q.AccessGroup = "other.example"
				_, st = c.FindOne(q)
				require.Equal(t, StatusItemNotFound, st)

				require.Equal(t, StatusSuccess, c.Delete(Query{Class: ClassGenericPassword, AccessGroup: "team.example"}))
				data, st = c.FindOne(findQuery("shared"))
				require.Equal(t, StatusSuccess, st)
				require.Equal(t, []byte("default"), data)
			})

			t.Run("empty payload is stored", func(t *testing.T) {
				c := newClient(t)
				require.Equal(t, StatusSuccess, c.Add(Item{Class: ClassGenericPassword, Account: "empty", Data: []byte{}}))

				data, st := c.FindOne(findQuery("empty"))
				require.Equal(t, StatusSuccess, st)
				require.Empty(t, data)
			})

			t.Run("invalid parameters", func(t *testing.T) {
				c := newClient(t)
				require.Equal(t, StatusParam, c.Add(Item{Class: ClassGenericPassword}))
				require.Equal(t, StatusParam, c.Add(Item{Account: "x"}))
				require.Equal(t, StatusParam, c.Delete(Query{}))

				q := findQuery("x")
				q.MatchLimit = MatchAll
				_, st := c.FindOne(q)
				require.Equal(t, StatusParam, st)
			})
		})
	}
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "item not found", StatusItemNotFound.String())
	require.Equal(t, "interaction not allowed", StatusInteractionNotAllowed.String())
	require.Equal(t, "status(-1)", Status(-1).String())
}

func genericItem(account, data string) Item {
	return Item{Class: ClassGenericPassword, Account: account, Data: []byte(data)}
}

func findQuery(account string) Query {
	return Query{Class: ClassGenericPassword, Account: account, MatchLimit: MatchOne, ReturnData: true}
}

func testArgon2Params() crypto.Argon2Params {
	return crypto.Argon2Params{Memory: crypto.MinArgon2MemoryKiB, Iterations: 1, Parallelism: 1}
}

func openTestSQLite(t *testing.T, path string) *SQLite {
	t.Helper()
	ks, err := OpenSQLite(path, SQLiteOptions{Argon2: testArgon2Params()})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, ks.Close()) })
	return ks
}

func newUnlockedSQLite(t *testing.T) *SQLite {
	t.Helper()
	ks := openTestSQLite(t, filepath.Join(t.TempDir(), "keystore.db"))
	require.NoError(t, ks.Unlock([]byte("correct horse")))
	return ks
}
