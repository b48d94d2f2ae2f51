package storage

import "errors"

var (
	ErrNotFound     = errors.New("storage: not found")
	ErrInvalidID    = errors.New("storage: invalid id")
	ErrIDMismatch   = errors.New("storage: id mismatch")
	ErrImmutable    = errors.New("storage: immutable object mismatch")
	ErrEmptyContent = errors.New("storage: empty content")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
