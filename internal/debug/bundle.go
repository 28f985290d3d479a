// Package debug collects a diagnostics bundle that is safe to share: paths,
// counts and schema state, never stored values.
package debug

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/amanthanvi/keystash/internal/config"
	"github.com/amanthanvi/keystash/internal/keystore"
	"github.com/amanthanvi/keystash/internal/prefs"
)

type Check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type Bundle struct {
	GeneratedAt string         `json:"generated_at"`
	GOOS        string         `json:"goos"`
	GOARCH      string         `json:"goarch"`
	Version     map[string]any `json:"version,omitempty"`
	Keystore    map[string]any `json:"keystore,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
	Checks      []Check        `json:"checks,omitempty"`
	Notes       []string       `json:"notes,omitempty"`
}

func NewBundle() Bundle {
	return Bundle{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339Nano),
		GOOS:        runtime.GOOS,
		GOARCH:      runtime.GOARCH,
	}
}

// Collect inspects the stores named by cfg without unlocking the keystore.
// The keystore is read over a read-only connection; a file that does not
// exist yet is reported, not created.
func Collect(cfg config.Config) Bundle {
	b := NewBundle()
	b.collectKeystore(cfg.Keystore)
	b.collectPreferences(cfg.Preferences)
	if cfg.Preferences.IgnoreMissingOnRemove {
		b.Notes = append(b.Notes, "preference removals of absent keys succeed (ignore_missing_on_remove)")
	}
	return b
}

func (b *Bundle) collectKeystore(cfg config.KeystoreConfig) {
	b.Keystore = map[string]any{
		"path":                 cfg.Path,
		"default_access_group": cfg.DefaultAccessGroup,
	}

	if _, err := os.Stat(cfg.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			b.addCheck("keystore_present", false, "keystore has not been created yet")
			return
		}
		b.addCheck("keystore_present", false, err.Error())
		return
	}
	b.addCheck("keystore_present", true, "")

	info, err := keystore.Inspect(cfg.Path)
	if err != nil {
		b.addCheck("keystore_open", false, err.Error())
		return
	}
	b.addCheck("keystore_open", true, "")

	b.Keystore["id"] = info.ID
	b.Keystore["schema_version"] = info.SchemaVersion
	b.Keystore["items"] = info.Items

	if current := keystore.CurrentSchemaVersion(); info.SchemaVersion > current {
		b.addCheck("keystore_schema", false, fmt.Sprintf("schema version %d is newer than supported version %d", info.SchemaVersion, current))
	} else {
		b.addCheck("keystore_schema", true, "")
	}

	msg := ""
	if !info.Initialized {
		msg = "no master key yet; the first unlock sets the passphrase"
	}
	b.addCheck("keystore_initialized", info.Initialized, msg)
}

func (b *Bundle) collectPreferences(cfg config.PreferencesConfig) {
	b.Preferences = map[string]any{
		"dir":   cfg.Dir,
		"suite": cfg.Suite,
		"codec": cfg.Codec,
	}

	suite, err := prefs.OpenFile(cfg.Dir, cfg.Suite)
	if err != nil {
		b.addCheck("preferences_readable", false, err.Error())
		return
	}
	b.Preferences["path"] = suite.Path()
	b.Preferences["keys"] = len(suite.AllKeys())
	b.addCheck("preferences_readable", true, "")
}

func (b *Bundle) addCheck(name string, ok bool, message string) {
	b.Checks = append(b.Checks, Check{Name: name, OK: ok, Message: message})
}

func WriteBundle(outputPath string, bundle Bundle) error {
	if outputPath == "" {
		return fmt.Errorf("write debug bundle: output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o700); err != nil {
		return fmt.Errorf("write debug bundle: create output directory: %w", err)
	}

	payload, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("write debug bundle: marshal json: %w", err)
	}
	if err := os.WriteFile(outputPath, payload, 0o600); err != nil {
		return fmt.Errorf("write debug bundle: %w", err)
	}
	return nil
}
