package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedactsSensitiveFields(t *testing.T) {
	t.Parallel()

	for _, field := range []string{"secret", "passphrase", "token", "password", "value", "data", "payload", "kek", "dek", "Master_Key"} {
		t.Run(field, func(t *testing.T) {
			t.Parallel()
			out := logSingleField(t, field, "hunter2")
			require.Equal(t, "[REDACTED]", out[field])
		})
	}
}

func TestStorageKeyNamesPassThrough(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "key", "session.token")
	require.Equal(t, "session.token", out["key"])
}

func TestRedactsNestedGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil)))
	logger.Info("test", slog.Group("item", slog.String("account", "a"), slog.String("data", "raw")))

	out := decodeLine(t, buf.Bytes())
	item := out["item"].(map[string]any)
	require.Equal(t, "a", item["account"])
	require.Equal(t, "[REDACTED]", item["data"])
}

func TestRedactsWithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil))).With("passphrase", "pw")
	logger.Info("test")

	require.Equal(t, "[REDACTED]", decodeLine(t, buf.Bytes())["passphrase"])
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"":      slog.LevelWarn,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestNewWritesToFallbackAtLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "info", JSON: true}, &buf)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, closer.Close()) })

	logger.Debug("hidden")
	logger.Info("shown", "secret", "s3cr3t")

	out := decodeLine(t, buf.Bytes())
	require.Equal(t, "shown", out["msg"])
	require.Equal(t, "[REDACTED]", out["secret"])
}

func TestNewWritesToRotatingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "keystash.log")
	logger, closer, err := New(Options{Level: "debug", File: path}, nil)
	require.NoError(t, err)

	logger.Debug("to file", "key", "k")
	require.NoError(t, closer.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "to file")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()
	_, _, err := New(Options{Level: "chatty"}, nil)
	require.Error(t, err)
}

func TestLogRotationCreatesNewFileAfterLimit(t *testing.T) {
	logDir := t.TempDir()
	logPath := filepath.Join(logDir, "keystash.log")

	writer, err := NewRotatingWriter(RotationConfig{File: logPath, MaxSizeMB: 1, MaxFiles: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	chunk := bytes.Repeat([]byte("a"), 512*1024)
	for i := 0; i < 5; i++ {
		_, err = writer.Write(chunk)
		require.NoError(t, err)
	}

	files, err := filepath.Glob(filepath.Join(logDir, "keystash*"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(files), 2)
}

func TestNewRotatingWriterRequiresPath(t *testing.T) {
	t.Parallel()
	_, err := NewRotatingWriter(RotationConfig{})
	require.Error(t, err)
}

func logSingleField(t *testing.T, key, value string) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.New(NewRedactingHandler(base)).Info("test", key, value)
	return decodeLine(t, buf.Bytes())
}

func decodeLine(t *testing.T, line []byte) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(line), &out))
	return out
}
