package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"

	"github.com/amanthanvi/keystash/internal/cli"
	"github.com/amanthanvi/keystash/internal/version"
)

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	cmd := cli.NewRootCommand(os.Stdout, cli.BuildInfo{
		Version:   version.Version,
		Commit:    version.Commit,
		BuildTime: version.BuildTime,
	})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "keystash: %v\n", err)
		code := cli.ExitCodeGeneric
		var withExitCode interface{ ExitCode() int }
		if errors.As(err, &withExitCode) {
			code = withExitCode.ExitCode()
		}
		memguard.Purge()
		os.Exit(code)
	}
}
