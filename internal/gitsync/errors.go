package gitsync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

var (
	// ErrNotEnabled is returned when Git sync is switched off.
	ErrNotEnabled = errors.New("git sync is not enabled")
	// ErrNotConfigured is returned when the repository or branch is missing.
	ErrNotConfigured = errors.New("git sync configuration is invalid")
	// ErrPushDisabled is returned by Push when pushEnabled is false.
	ErrPushDisabled = errors.New("push is disabled")
	// ErrCloneLocked is returned when another process holds the clone.
	ErrCloneLocked = errors.New("repository clone is locked by another process")
	// ErrRepoNotCloned is returned by operations that need an opened clone.
	ErrRepoNotCloned = errors.New("repository is not cloned")
)

// RemoteAuthError reports a rejected credential.
type RemoteAuthError struct {
	Op     string
	Remote string // masked
	Err    error
}

func (e *RemoteAuthError) Error() string {
	return fmt.Sprintf("%s %s: authentication failed: %v", e.Op, e.Remote, e.Err)
}

func (e *RemoteAuthError) Unwrap() error { return e.Err }

// RemoteConflictError reports a push rejected because the remote advanced.
type RemoteConflictError struct {
	Remote string // masked
	Err    error
}

func (e *RemoteConflictError) Error() string {
	return fmt.Sprintf("push to %s rejected: %v", e.Remote, e.Err)
}

func (e *RemoteConflictError) Unwrap() error { return e.Err }

// IsConflict reports whether err is a rejected push.
func IsConflict(err error) bool {
	var conflictErr *RemoteConflictError
	return errors.As(err, &conflictErr)
}

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool {
	var authErr *RemoteAuthError
	return errors.As(err, &authErr)
}

// classifyRemoteError maps go-git errors onto the sync error taxonomy.
func classifyRemoteError(op, remote string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		return &RemoteAuthError{Op: op, Remote: remote, Err: err}
	case errors.Is(err, git.ErrNonFastForwardUpdate),
		errors.Is(err, git.ErrForceNeeded),
		isRejectedMessage(err):
		return &RemoteConflictError{Remote: remote, Err: err}
	default:
		return fmt.Errorf("%s %s: %w", op, remote, err)
	}
}

func isRejectedMessage(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "non-fast-forward") ||
		strings.Contains(msg, "rejected") ||
		strings.Contains(msg, "fetch first")
}

// InvalidPathError reports a file name that would escape the sync directory.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}
