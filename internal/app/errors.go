package app

import "errors"

var (
	ErrValidation = errors.New("app: validation failed")
	ErrNotFound   = errors.New("app: key not found")
)
