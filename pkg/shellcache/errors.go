package shellcache

import (
	"errors"
	"fmt"
)

// ErrInstallFailed matches every *InstallError via errors.Is.
var ErrInstallFailed = errors.New("shell install failed")

// InstallError reports the shell asset that aborted an install.
type InstallError struct {
	// Path is the manifest path that failed. Empty when committing the
	// store failed after all assets were fetched.
	Path string

	// StatusCode is set when the asset was fetched with a non-2xx status.
	StatusCode int

	Err error
}

// Error implements the error interface.
func (e *InstallError) Error() string {
	switch {
	case e.Path == "":
		return fmt.Sprintf("shell install failed: commit: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("shell install failed: %s: status %d", e.Path, e.StatusCode)
	default:
		return fmt.Sprintf("shell install failed: %s: %v", e.Path, e.Err)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *InstallError) Unwrap() error {
	return e.Err
}

// Is reports ErrInstallFailed as a match.
func (e *InstallError) Is(target error) bool {
	return target == ErrInstallFailed
}
