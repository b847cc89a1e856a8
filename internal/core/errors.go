package core

import (
	"errors"
	"fmt"
)

// Sentinel errors checked by callers with errors.Is.
var (
	// ErrNotRepository is returned when the repository path is not the root of a git working tree.
	ErrNotRepository = errors.New("not a git repository")

	// ErrDirtyTree is returned by the preflight check when the working tree has uncommitted changes.
	ErrDirtyTree = errors.New("working tree has uncommitted changes")

	// ErrBackup is returned when the backup archive cannot be written.
	ErrBackup = errors.New("backup failed")

	// ErrDestinationExists is returned when a move would overwrite an existing file or
	// a non-empty directory.
	ErrDestinationExists = errors.New("destination already exists")

	// ErrBrokenLinks is matched by *LinkCheckError.
	ErrBrokenLinks = errors.New("broken local references")

	// ErrInvalidTarget is returned for redirect targets that are not site-rooted paths.
	ErrInvalidTarget = errors.New("redirect target must be a site-rooted path")

	// ErrRunNotFound is returned when the journal holds no run with the requested id.
	ErrRunNotFound = errors.New("run not found")
)

// LinkCheckError carries every violation found by the link integrity check.
type LinkCheckError struct {
	Violations []Violation
}

func (e *LinkCheckError) Error() string {
	return fmt.Sprintf("%d broken local reference(s)", len(e.Violations))
}

func (e *LinkCheckError) Is(target error) bool {
	return target == ErrBrokenLinks
}
