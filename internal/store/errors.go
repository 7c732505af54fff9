package store

import (
	"errors"
	"fmt"
)

// Error taxonomy. Read-path failures (ErrInit, ErrLoad) are recovered
// locally with empty defaults; write-path failures (ErrPersist, ErrBackup,
// ErrValidation) are surfaced so the caller knows the write did not happen.
var (
	ErrInit       = errors.New("store: init failed")
	ErrLoad       = errors.New("store: load failed")
	ErrPersist    = errors.New("store: persist failed")
	ErrBackup     = errors.New("store: backup failed")
	ErrValidation = errors.New("store: invalid prompt")
	ErrNotFound   = errors.New("store: prompt not found")
)

// DuplicateError is returned when an insert is refused because the new
// text matches existing prompts. Recoverable by re-inserting with force.
type DuplicateError struct {
	Matches []Prompt
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("store: duplicate detected (%d matching prompts)", len(e.Matches))
}

// IsDuplicate reports whether err is a DuplicateError.
func IsDuplicate(err error) bool {
	var de *DuplicateError
	return errors.As(err, &de)
}
