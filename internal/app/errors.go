package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrChatNotFound    = errors.New("chat not found")
	ErrChatExists      = errors.New("chat with this title already exists")
	ErrContextTooLarge = errors.New("question exceeds the context token budget")
)

// StorageError wraps an unexpected durable-store failure. Expected business
// outcomes (missing chat, duplicate title) use the sentinels above; anything
// else the database throws ends up here and is always surfaced.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
