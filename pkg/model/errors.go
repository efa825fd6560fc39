package model

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is classification.
var (
	ErrPathNotFound = errors.New("model: path not found")
	ErrTypeMismatch = errors.New("model: type mismatch")
)

// PathNotFoundError reports a path that does not resolve in the tree.
type PathNotFoundError struct {
	Path   string
	Reason string
}

func (e *PathNotFoundError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("model: path %q not found", e.Path)
	}
	return fmt.Sprintf("model: path %q not found: %s", e.Path, e.Reason)
}

func (e *PathNotFoundError) Unwrap() error { return ErrPathNotFound }

// TypeMismatchError reports a value whose kind does not match the target.
type TypeMismatchError struct {
	Path string
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("model: path %q: want %s, got %s", e.Path, e.Want, e.Got)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }
