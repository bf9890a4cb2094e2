package backup

import (
	"errors"
	"fmt"
)

// ErrNotPersistent reports that the database has no file backing.
// Nothing is created on disk when a run fails with it.
var ErrNotPersistent = errors.New("database is not persistent")

// IOError wraps any read/write/open/close failure during a backup
// run, carrying the path the failure belongs to.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("backup I/O failure on %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ContainmentError reports that a companion file's real path does not
// fall under the database's base directory. This is an internal
// invariant violation, not a user error.
type ContainmentError struct {
	Path string
	Base string
}

func (e *ContainmentError) Error() string {
	return fmt.Sprintf("internal: %s does not start with %s", e.Path, e.Base)
}

// PermissionError reports that the caller lacks the privilege to run
// a backup. It is raised before any file activity.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("backup not authorized: %v", e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }
