package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/amanthanvi/keystash/internal/codec"
	"github.com/amanthanvi/keystash/internal/keystore"
	"github.com/amanthanvi/keystash/internal/prefs"
	"github.com/stretchr/testify/require"
)

// scriptedKeystore records every request and lets a test force statuses.
type scriptedKeystore struct {
	inner keystore.Client

	mu         sync.Mutex
	adds       []keystore.Item
	deletes    []keystore.Query
	finds      []keystore.Query
	addStatus  *keystore.Status
	delStatus  *keystore.Status
	findStatus *keystore.Status
}

func newScriptedKeystore() *scriptedKeystore {
	return &scriptedKeystore{inner: keystore.NewMemory("")}
}

func (s *scriptedKeystore) Add(item keystore.Item) keystore.Status {
	s.mu.Lock()
	s.adds = append(s.adds, item)
	forced := s.addStatus
	s.mu.Unlock()
	if forced != nil {
		return *forced
	}
	return s.inner.Add(item)
}

func (s *scriptedKeystore) Delete(q keystore.Query) keystore.Status {
	s.mu.Lock()
	s.deletes = append(s.deletes, q)
	forced := s.delStatus
	s.mu.Unlock()
	if forced != nil {
		return *forced
	}
	return s.inner.Delete(q)
}

func (s *scriptedKeystore) FindOne(q keystore.Query) ([]byte, keystore.Status) {
	s.mu.Lock()
	s.finds = append(s.finds, q)
	forced := s.findStatus
	s.mu.Unlock()
	if forced != nil {
		return nil, *forced
	}
	return s.inner.FindOne(q)
}

func statusPtr(st keystore.Status) *keystore.Status { return &st }

func TestSecureStoresStringsAsRawUTF8(t *testing.T) {
	t.Parallel()

	ks := newScriptedKeystore()
	s := NewSecureStorage(ks, SecureOptions{})

	require.NoError(t, Set(s, "greeting", "héllo"))
	require.Len(t, ks.adds, 1)
	require.Equal(t, []byte("héllo"), ks.adds[0].Data)

	require.NoError(t, Set(s, "count", 7))
	require.Equal(t, []byte("7"), ks.adds[1].Data)
}

func TestSecureNonUTF8BytesReadAsAbsentString(t *testing.T) {
	t.Parallel()

	ks := keystore.NewMemory("")
	require.Equal(t, keystore.StatusSuccess, ks.Add(keystore.Item{
		Class:   keystore.ClassGenericPassword,
		Account: "binary",
		Data:    []byte{0xff, 0xfe, 0xfd},
	}))

	s := NewSecureStorage(ks, SecureOptions{})
	got, found, err := Get[string](s, "binary")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, got)
	require.Equal(t, keystore.StatusSuccess, s.LastStatus())
}

func TestSecureStringWrittenRawIsReadableByOtherClients(t *testing.T) {
	t.Parallel()

	ks := keystore.NewMemory("")
	s := NewSecureStorage(ks, SecureOptions{})
	require.NoError(t, Set(s, "token", "abc"))

	data, st := ks.FindOne(keystore.Query{
		Class:      keystore.ClassGenericPassword,
		Account:    "token",
		ReturnData: true,
	})
	require.Equal(t, keystore.StatusSuccess, st)
	require.Equal(t, []byte("abc"), data)
}

func TestSecureSetIssuesDeleteThenAdd(t *testing.T) {
	t.Parallel()

	ks := newScriptedKeystore()
	s := NewSecureStorage(ks, SecureOptions{})

	require.NoError(t, Set(s, "k", "v1"))
	require.NoError(t, Set(s, "k", "v2"))

	require.Len(t, ks.deletes, 2)
	require.Len(t, ks.adds, 2)
	for _, q := range ks.deletes {
		require.Equal(t, keystore.ClassGenericPassword, q.Class)
		require.Equal(t, "k", q.Account)
	}
	require.Equal(t, keystore.StatusSuccess, s.LastStatus())
}

func TestSecureQueriesCarryAccessGroupAndSyncAttributes(t *testing.T) {
	t.Parallel()

	ks := newScriptedKeystore()
	s := NewSecureStorage(ks, SecureOptions{Synchronizable: true, AccessGroup: "team.example"})

	require.NoError(t, Set(s, "k", "v"))
	_, _, err := Get[string](s, "k")
	require.NoError(t, err)

	add := ks.adds[0]
	require.Equal(t, "team.example", add.AccessGroup)
	require.True(t, add.Synchronizable)

	find := ks.finds[0]
	require.Equal(t, "team.example", find.AccessGroup)
	require.Equal(t, keystore.SyncAny, find.Synchronizable)
	require.Equal(t, keystore.MatchOne, find.MatchLimit)
	require.True(t, find.ReturnData)

	require.NoError(t, s.RemoveAll())
	wipe := ks.deletes[len(ks.deletes)-1]
	require.Empty(t, wipe.Account)
	require.Equal(t, "team.example", wipe.AccessGroup)
}

func TestSecureQueriesOmitOptionalAttributesByDefault(t *testing.T) {
	t.Parallel()

	ks := newScriptedKeystore()
	s := NewSecureStorage(ks, SecureOptions{})

	require.NoError(t, Set(s, "k", "v"))
	_, _, err := Get[string](s, "k")
	require.NoError(t, err)

	require.Empty(t, ks.adds[0].AccessGroup)
	require.False(t, ks.adds[0].Synchronizable)
	require.Empty(t, ks.finds[0].AccessGroup)
	require.Equal(t, keystore.SyncUnset, ks.finds[0].Synchronizable)
}

func TestSecureAddFailureReturnsKeychainError(t *testing.T) {
	t.Parallel()

	ks := newScriptedKeystore()
	ks.addStatus = statusPtr(keystore.StatusInteractionNotAllowed)
	s := NewSecureStorage(ks, SecureOptions{})

	err := Set(s, "k", "v")
	require.ErrorIs(t, err, ErrKeychain)

	var kerr *KeychainError
	require.True(t, errors.As(err, &kerr))
	require.Equal(t, keystore.StatusInteractionNotAllowed, kerr.Status)
	require.Equal(t, keystore.StatusInteractionNotAllowed, s.LastStatus())
}

func TestSecureFailedAddAfterDeleteLeavesKeyAbsent(t *testing.T) {
	t.Parallel()

	ks := newScriptedKeystore()
	s := NewSecureStorage(ks, SecureOptions{})
	require.NoError(t, Set(s, "k", "old"))

	ks.addStatus = statusPtr(keystore.StatusIO)
	require.ErrorIs(t, Set(s, "k", "new"), ErrKeychain)

	_, found, err := Get[string](s, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSecureFindFailureReadsAsAbsent(t *testing.T) {
	t.Parallel()

	ks := newScriptedKeystore()
	s := NewSecureStorage(ks, SecureOptions{})
	require.NoError(t, Set(s, "k", "v"))

	ks.findStatus = statusPtr(keystore.StatusInteractionNotAllowed)
	_, found, err := Get[string](s, "k")
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, keystore.StatusInteractionNotAllowed, s.LastStatus())
}

func TestSecureRemoveOfAbsentKeySucceeds(t *testing.T) {
	t.Parallel()

	s := NewSecureStorage(keystore.NewMemory(""), SecureOptions{})
	require.NoError(t, s.Remove("never-written"))
	require.Equal(t, keystore.StatusItemNotFound, s.LastStatus())
	require.NoError(t, s.RemoveAll())
}

func TestSecureRemoveFailureReturnsRemovalError(t *testing.T) {
	t.Parallel()

	ks := newScriptedKeystore()
	ks.delStatus = statusPtr(keystore.StatusIO)
	s := NewSecureStorage(ks, SecureOptions{})

	err := s.Remove("k")
	require.ErrorIs(t, err, ErrRemovalFailed)
	var rerr *RemovalError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, keystore.StatusIO, rerr.Status)
	require.Contains(t, rerr.Detail, `"k"`)

	require.ErrorIs(t, s.RemoveAll(), ErrRemovalFailed)
}

func TestSecureLastQueryDescribesMostRecentCall(t *testing.T) {
	t.Parallel()

	s := NewSecureStorage(keystore.NewMemory(""), SecureOptions{Synchronizable: true, AccessGroup: "team.example"})
	require.Zero(t, s.LastQuery())

	require.NoError(t, Set(s, "k", "v"))
	require.Equal(t, keystore.Query{
		Class:          keystore.ClassGenericPassword,
		Account:        "k",
		AccessGroup:    "team.example",
		Synchronizable: keystore.SyncOn,
	}, s.LastQuery())

	_, found, err := Get[string](s, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, keystore.Query{
		Class:          keystore.ClassGenericPassword,
		Account:        "k",
		AccessGroup:    "team.example",
		Synchronizable: keystore.SyncAny,
		MatchLimit:     keystore.MatchOne,
		ReturnData:     true,
	}, s.LastQuery())

	require.NoError(t, s.RemoveAll())
	require.Equal(t, keystore.Query{
		Class:          keystore.ClassGenericPassword,
		AccessGroup:    "team.example",
		Synchronizable: keystore.SyncAny,
	}, s.LastQuery())
	require.Equal(t, keystore.StatusSuccess, s.LastStatus())
}

func TestSecureSynchronizableInstanceOverwritesItsItems(t *testing.T) {
	t.Parallel()

	ks := keystore.NewMemory("")
	s := NewSecureStorage(ks, SecureOptions{Synchronizable: true})

	require.NoError(t, Set(s, "k", "v1"))
	require.NoError(t, Set(s, "k", "v2"))
	require.Equal(t, 1, ks.Len())

	got, found, err := Get[string](s, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v2", got)
}

func TestSecureCBORCodec(t *testing.T) {
	t.Parallel()

	s := NewSecureStorage(keystore.NewMemory(""), SecureOptions{Codec: codec.CBOR})
	want := account{Name: "ada", Scopes: []string{"admin"}}
	require.NoError(t, Set(s, "account", want))

	got, found, err := Get[account](s, "account")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want, got)
}

func TestSecureLogsNeverCarryPayloads(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ks := newScriptedKeystore()
	ks.addStatus = statusPtr(keystore.StatusDuplicateItem)
	s := NewSecureStorage(ks, SecureOptions{Logger: logger})

	require.Error(t, Set(s, "k", "super-secret-payload"))
	require.NotContains(t, buf.String(), "super-secret-payload")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "duplicate item", line["status"])
	require.Equal(t, "secure", line["backend"])
}

func TestAdaptersWithoutLoggerDiscard(t *testing.T) {
	t.Parallel()

	s := NewSecureStorage(keystore.NewMemory(""), SecureOptions{})
	require.Equal(t, slog.DiscardHandler, s.logger.Handler())

	p := NewPreferenceStorage(prefs.NewMemory(), PreferenceOptions{})
	require.Equal(t, slog.DiscardHandler, p.logger.Handler())
}
