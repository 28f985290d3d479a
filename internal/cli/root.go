package cli

import (
	"io"

	"github.com/spf13/cobra"
)

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type GlobalOptions struct {
	ConfigPath      string
	JSON            bool
	PassphraseStdin bool
	KeystorePath    string
	PreferencesDir  string
	Suite           string
	LogLevel        string
}

type commandDeps struct {
	out     io.Writer
	build   BuildInfo
	globals *GlobalOptions
}

func NewRootCommand(out io.Writer, build BuildInfo) *cobra.Command {
	globals := &GlobalOptions{}
	deps := commandDeps{out: out, build: build, globals: globals}

	cmd := &cobra.Command{
		Use:           "keystash",
		Short:         "Keystash stores values in an encrypted keystore or in preference suites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitCodeUsage, Err: err}
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&globals.ConfigPath, "config", "", "Config file path")
	flags.BoolVar(&globals.JSON, "json", false, "Print output as JSON")
	flags.BoolVar(&globals.PassphraseStdin, "passphrase-stdin", false, "Read the keystore passphrase from stdin")
	flags.StringVar(&globals.KeystorePath, "keystore", "", "Keystore database path")
	flags.StringVar(&globals.PreferencesDir, "prefs-dir", "", "Preference suite directory")
	flags.StringVar(&globals.Suite, "suite", "", "Preference suite name")
	flags.StringVar(&globals.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")

	cmd.AddCommand(
		newVersionCommand(deps),
		newStoreCommand(deps, secureStore),
		newStoreCommand(deps, preferenceStore),
		newDebugCommand(deps),
	)
	cmd.InitDefaultCompletionCmd()
	return cmd
}
