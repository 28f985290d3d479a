package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/amanthanvi/keystash/internal/app"
	"github.com/amanthanvi/keystash/internal/config"
	logpkg "github.com/amanthanvi/keystash/internal/log"
)

const passphraseEnv = "KEYSTASH_PASSPHRASE"

var (
	loadConfigFn = config.Load
	lookupEnvFn  = os.LookupEnv
)

// withRuntime loads configuration, builds the logger and hands fn a runtime
// that is closed when fn returns.
func withRuntime(cmd *cobra.Command, deps commandDeps, fn func(*app.Runtime) error) error {
	cfg, err := loadConfigFn(loadOptions(deps.globals))
	if err != nil {
		return mapCommandError(fmt.Errorf("load config: %w", err))
	}

	logger, closer, err := logpkg.New(logpkg.Options{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
		JSON:      deps.globals.JSON,
	}, cmd.ErrOrStderr())
	if err != nil {
		return mapCommandError(fmt.Errorf("configure logging: %w", err))
	}
	defer closer.Close()

	rt := app.NewRuntime(cfg, logger)
	runErr := fn(rt)
	if closeErr := rt.Close(); runErr == nil && closeErr != nil {
		runErr = fmt.Errorf("close runtime: %w", closeErr)
	}
	return mapCommandError(runErr)
}

func loadOptions(globals *GlobalOptions) config.LoadOptions {
	opts := config.LoadOptions{}
	if globals == nil {
		return opts
	}
	opts.ConfigPath = strings.TrimSpace(globals.ConfigPath)
	opts.Flags = config.FlagOverrides{
		KeystorePath:   nonEmpty(globals.KeystorePath),
		PreferencesDir: nonEmpty(globals.PreferencesDir),
		Suite:          nonEmpty(globals.Suite),
		LogLevel:       nonEmpty(globals.LogLevel),
	}
	return opts
}

func nonEmpty(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// readPassphrase returns the keystore passphrase in a locked buffer the
// caller must destroy.
func readPassphrase(cmd *cobra.Command, globals *GlobalOptions) (*memguard.LockedBuffer, error) {
	if globals.PassphraseStdin {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read passphrase from stdin: %w", err)
		}
		raw = bytes.TrimRight(raw, "\r\n")
		if len(raw) == 0 {
			return nil, usageErrorf("--passphrase-stdin requires a non-empty value on stdin")
		}
		return memguard.NewBufferFromBytes(raw), nil
	}
	if value, ok := lookupEnvFn(passphraseEnv); ok && value != "" {
		return memguard.NewBufferFromBytes([]byte(value)), nil
	}
	return nil, usageErrorf("secure commands need a passphrase: set %s or pass --passphrase-stdin", passphraseEnv)
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
