package app

import (
	"path/filepath"
	"testing"

	"github.com/awnumar/memguard"
	"github.com/stretchr/testify/require"

	"github.com/amanthanvi/keystash/internal/config"
	"github.com/amanthanvi/keystash/internal/crypto"
	"github.com/amanthanvi/keystash/internal/keystore"
	"github.com/amanthanvi/keystash/internal/storage"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Keystore.Path = filepath.Join(dir, "keystore.db")
	cfg.Keystore.Argon2MemoryKiB = crypto.MinArgon2MemoryKiB
	cfg.Keystore.Argon2Iterations = 1
	cfg.Preferences.Dir = filepath.Join(dir, "preferences")
	return cfg
}

func passphrase(s string) *memguard.LockedBuffer {
	return memguard.NewBufferFromBytes([]byte(s))
}

func openSecure(t *testing.T, rt *Runtime, pw string) *StoreService {
	t.Helper()

	buf := passphrase(pw)
	defer buf.Destroy()
	svc, err := rt.Secure(buf)
	require.NoError(t, err)
	return svc
}

func TestRuntimeSecurePersistsAcrossRuntimes(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)

	rt := NewRuntime(cfg, nil)
	svc := openSecure(t, rt, "correct horse")
	require.NoError(t, svc.SetText("api-token", "t0k3n"))
	require.NoError(t, rt.Close())

	rt = NewRuntime(cfg, nil)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })
	svc = openSecure(t, rt, "correct horse")
	got, err := svc.GetText("api-token")
	require.NoError(t, err)
	require.Equal(t, "t0k3n", got)
}

func TestRuntimeSecureRejectsWrongPassphrase(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	rt := NewRuntime(cfg, nil)
	openSecure(t, rt, "right")
	require.NoError(t, rt.Close())

	rt = NewRuntime(cfg, nil)
	buf := passphrase("wrong")
	defer buf.Destroy()
	_, err := rt.Secure(buf)
	require.ErrorIs(t, err, keystore.ErrInvalidPassphrase)
}

func TestRuntimeSecureRequiresPassphrase(t *testing.T) {
	t.Parallel()

	rt := NewRuntime(testConfig(t), nil)
	_, err := rt.Secure(nil)
	require.ErrorIs(t, err, ErrValidation)
}

func TestRuntimeSecureAppliesConfiguredScope(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Secure.Synchronizable = true
	cfg.Secure.AccessGroup = "team.example"
	cfg.Secure.Codec = "cbor"

	rt := NewRuntime(cfg, nil)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })
	svc := openSecure(t, rt, "pw")

	require.NoError(t, svc.SetJSON("profile", []byte(`{"name":"ada"}`)))
	require.NoError(t, svc.SetJSON("profile", []byte(`{"name":"grace"}`)))

	got, err := svc.GetJSON("profile")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"name": "grace"}, got)
}

func TestRuntimePreferencesRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	rt := NewRuntime(cfg, nil)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })

	svc, err := rt.Preferences()
	require.NoError(t, err)
	require.Equal(t, "preferences", svc.Name())

	require.NoError(t, svc.SetJSON("limits", []byte(`{"max":3}`)))
	got, err := svc.GetJSON("limits")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"max": float64(3)}, got)

	require.NoError(t, svc.Remove("limits"))
	_, err = svc.GetJSON("limits")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRuntimePreferencesRemovalAsymmetry(t *testing.T) {
	t.Parallel()

	rt := NewRuntime(testConfig(t), nil)
	svc, err := rt.Preferences()
	require.NoError(t, err)

	require.ErrorIs(t, svc.Remove("absent"), storage.ErrRemovalFailed)
	require.ErrorIs(t, svc.Clear(), storage.ErrRemovalFailed)

	cfg := testConfig(t)
	cfg.Preferences.IgnoreMissingOnRemove = true
	lenient, err := NewRuntime(cfg, nil).Preferences()
	require.NoError(t, err)
	require.NoError(t, lenient.Remove("absent"))
	require.NoError(t, lenient.Clear())
}

func TestStoreServiceValidation(t *testing.T) {
	t.Parallel()

	rt := NewRuntime(testConfig(t), nil)
	svc, err := rt.Preferences()
	require.NoError(t, err)

	require.ErrorIs(t, svc.SetText(" ", "v"), ErrValidation)
	require.ErrorIs(t, svc.SetJSON("k", []byte("{not json")), ErrValidation)
	_, err = svc.GetText("")
	require.ErrorIs(t, err, ErrValidation)
}

func TestStoreServiceTextOverSecureRawBytes(t *testing.T) {
	t.Parallel()

	rt := NewRuntime(testConfig(t), nil)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })
	svc := openSecure(t, rt, "pw")

	require.NoError(t, svc.SetText("greeting", "hello"))
	got, err := svc.GetJSON("greeting")
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	require.NoError(t, svc.Remove("never-written"))
	require.NoError(t, svc.Clear())
	_, err = svc.GetText("greeting")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreServiceJSONStringRoundTrip(t *testing.T) {
	t.Parallel()

	rt := NewRuntime(testConfig(t), nil)
	t.Cleanup(func() { require.NoError(t, rt.Close()) })

	prefsSvc, err := rt.Preferences()
	require.NoError(t, err)

	for _, svc := range []*StoreService{openSecure(t, rt, "pw"), prefsSvc} {
		require.NoError(t, svc.SetJSON("motto", []byte(`"abc"`)), svc.Name())

		got, err := svc.GetJSON("motto")
		require.NoError(t, err, svc.Name())
		require.Equal(t, "abc", got, svc.Name())

		text, err := svc.GetText("motto")
		require.NoError(t, err, svc.Name())
		require.Equal(t, "abc", text, svc.Name())
	}
}

func TestStoreServiceGetJSONKeepsDecodeErrorForBinarySecrets(t *testing.T) {
	t.Parallel()

	ks := keystore.NewMemory("")
	require.Equal(t, keystore.StatusSuccess, ks.Add(keystore.Item{
		Class:   keystore.ClassGenericPassword,
		Account: "blob",
		Data:    []byte{0xff, 0xfe},
	}))
	svc := NewStoreService("secure", storage.NewSecureStorage(ks, storage.SecureOptions{}))

	_, err := svc.GetJSON("blob")
	require.ErrorIs(t, err, storage.ErrDecodingFailed)
}
