package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amanthanvi/keystash/internal/app"
)

type storeKind struct {
	use   string
	short string
	open  func(cmd *cobra.Command, deps commandDeps, rt *app.Runtime) (*app.StoreService, error)
}

var secureStore = storeKind{
	use:   "secure",
	short: "Values in the encrypted keystore",
	open: func(cmd *cobra.Command, deps commandDeps, rt *app.Runtime) (*app.StoreService, error) {
		passphrase, err := readPassphrase(cmd, deps.globals)
		if err != nil {
			return nil, err
		}
		defer passphrase.Destroy()
		return rt.Secure(passphrase)
	},
}

var preferenceStore = storeKind{
	use:   "prefs",
	short: "Values in a preference suite",
	open: func(_ *cobra.Command, _ commandDeps, rt *app.Runtime) (*app.StoreService, error) {
		return rt.Preferences()
	},
}

func newStoreCommand(deps commandDeps, kind storeKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind.use,
		Short: kind.short,
	}
	cmd.AddCommand(
		newStoreSetCommand(deps, kind),
		newStoreGetCommand(deps, kind),
		newStoreRemoveCommand(deps, kind),
		newStoreClearCommand(deps, kind),
	)
	return cmd
}

// withStore opens the store of kind inside a fresh runtime.
func withStore(cmd *cobra.Command, deps commandDeps, kind storeKind, fn func(*app.StoreService) error) error {
	return withRuntime(cmd, deps, func(rt *app.Runtime) error {
		svc, err := kind.open(cmd, deps, rt)
		if err != nil {
			return err
		}
		return fn(svc)
	})
}

func newStoreSetCommand(deps commandDeps, kind storeKind) *cobra.Command {
	var jsonValue bool
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value under key",
		Example: fmt.Sprintf("  keystash %[1]s set api-token s3cr3t\n"+
			"  keystash %[1]s set limits '{\"max\":3}' --json-value", kind.use),
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return usageErrorf("%s set requires a key and a value", kind.use)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			return withStore(cmd, deps, kind, func(svc *app.StoreService) error {
				var err error
				if jsonValue {
					err = svc.SetJSON(key, []byte(value))
				} else {
					err = svc.SetText(key, value)
				}
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{"key": key, "stored": true})
				}
				_, err = fmt.Fprintf(deps.out, "stored %s\n", key)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&jsonValue, "json-value", false, "Parse the value as a JSON document")
	return cmd
}

func newStoreGetCommand(deps commandDeps, kind storeKind) *cobra.Command {
	var jsonValue bool
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under key",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("%s get requires exactly one key", kind.use)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			return withStore(cmd, deps, kind, func(svc *app.StoreService) error {
				var (
					value any
					err   error
				)
				if jsonValue {
					value, err = svc.GetJSON(key)
				} else {
					value, err = svc.GetText(key)
				}
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{"key": key, "value": value})
				}
				if jsonValue {
					return printJSON(deps.out, value)
				}
				_, err = fmt.Fprintln(deps.out, value)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&jsonValue, "json-value", false, "Decode the stored value as a JSON document")
	return cmd
}

func newStoreRemoveCommand(deps commandDeps, kind storeKind) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Remove the value stored under key",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("%s rm requires exactly one key", kind.use)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			return withStore(cmd, deps, kind, func(svc *app.StoreService) error {
				if err := svc.Remove(key); err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{"key": key, "removed": true})
				}
				_, err := fmt.Fprintf(deps.out, "removed %s\n", key)
				return err
			})
		},
	}
}

func newStoreClearCommand(deps commandDeps, kind storeKind) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every value in the store",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("%s clear does not accept positional arguments", kind.use)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, deps, kind, func(svc *app.StoreService) error {
				if err := svc.Clear(); err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{"store": svc.Name(), "cleared": true})
				}
				_, err := fmt.Fprintf(deps.out, "cleared %s\n", svc.Name())
				return err
			})
		},
	}
}
