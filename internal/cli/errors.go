package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/amanthanvi/keystash/internal/app"
	"github.com/amanthanvi/keystash/internal/config"
	"github.com/amanthanvi/keystash/internal/keystore"
	"github.com/amanthanvi/keystash/internal/storage"
)

const (
	ExitCodeSuccess    = 0
	ExitCodeGeneric    = 1
	ExitCodeUsage      = 2
	ExitCodeNotFound   = 3
	ExitCodeAuthFailed = 5
	ExitCodeIO         = 7
)

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ExitError) ExitCode() int {
	if e == nil {
		return ExitCodeGeneric
	}
	return e.Code
}

func asExitError(code int, err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}
	return &ExitError{Code: code, Err: err}
}

func mapCommandError(err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}

	switch {
	case errors.Is(err, app.ErrValidation),
		errors.Is(err, storage.ErrInvalidKey),
		errors.Is(err, config.ErrInvalidConfig):
		return asExitError(ExitCodeUsage, err)
	case errors.Is(err, app.ErrNotFound):
		return asExitError(ExitCodeNotFound, err)
	case errors.Is(err, keystore.ErrInvalidPassphrase):
		return asExitError(ExitCodeAuthFailed, err)
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return asExitError(ExitCodeIO, err)
	}
	var kerr *storage.KeychainError
	if errors.As(err, &kerr) && kerr.Status == keystore.StatusIO {
		return asExitError(ExitCodeIO, err)
	}
	var rerr *storage.RemovalError
	if errors.As(err, &rerr) && rerr.Status == keystore.StatusIO {
		return asExitError(ExitCodeIO, err)
	}

	return asExitError(ExitCodeGeneric, err)
}

func usageErrorf(format string, args ...any) error {
	return &ExitError{
		Code: ExitCodeUsage,
		Err:  fmt.Errorf(format, args...),
	}
}
