package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Input errors - 輸入驗證錯誤
var (
	// ErrValidation indicates bad filter syntax, missing input or duplicate titles
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrNotDirectory indicates a --dir input that is not a directory
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFile indicates a --file input that is not a regular file
	ErrNotFile = errors.New("not a file")
)

// Local I/O errors - 本機檔案讀取錯誤
var (
	// ErrIO indicates a local file became unreadable
	ErrIO = errors.New("io error")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")
)

// Remote errors - NotebookLM 遠端操作錯誤
var (
	// ErrRemoteTransient covers timeouts and dropped connections against the remote
	ErrRemoteTransient = errors.New("remote transient error")

	// ErrRemoteAuth indicates the browser profile is not logged in
	ErrRemoteAuth = errors.New("remote authentication required")

	// ErrTimeout indicates a bounded wait expired
	ErrTimeout = errors.New("operation timed out")

	// ErrRemoteUI indicates an expected page element was missing
	ErrRemoteUI = errors.New("remote page element not found")

	// ErrRateLimited indicates NotebookLM refused a question for quota reasons
	ErrRateLimited = errors.New("remote rate limit reached")
)

// Config errors - 設定檔與執行狀態錯誤
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")

	// ErrNotebookNotFound indicates the notebook is not in the library
	ErrNotebookNotFound = errors.New("notebook not found")

	// ErrProfileLocked indicates another process is driving the same browser profile
	ErrProfileLocked = errors.New("browser profile in use")

	// ErrAborted indicates a fail-fast run stopped at its first item failure
	ErrAborted = errors.New("aborted after item failure")
)

// ValidationError reports invalid input detected before any remote interaction.
// Kind optionally narrows it, e.g. ErrNotFile or ErrNotFound.
type ValidationError struct {
	Msg  string
	Kind error
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Unwrap() []error {
	if e.Kind == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Kind}
}

// Validationf builds a ValidationError with a formatted message
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidPath builds a ValidationError of the given kind for path
func InvalidPath(kind error, format string, path string) error {
	return &ValidationError{Msg: fmt.Sprintf(format, path), Kind: kind}
}

// IoError reports a local file that could not be read
type IoError struct {
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *IoError) Unwrap() []error { return []error{ErrIO, e.Err} }

// RemoteError wraps a failure of a remote operation
type RemoteError struct {
	Op    string
	Title string
	Err   error
}

func (e *RemoteError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("%s %q: %v", e.Op, e.Title, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// transientKeywords are substrings of browser driver errors that usually clear on retry
var transientKeywords = []string{
	"timeout",
	"timed out",
	"net::",
	"connection",
	"target closed",
	"page crashed",
	"execution context was destroyed",
	"context closed",
	"protocol error",
	"browser has been closed",
	"closed",
}

// IsRetryable reports whether err is worth another attempt
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRemoteAuth) || errors.Is(err, ErrValidation) || errors.Is(err, ErrAborted) ||
		errors.Is(err, ErrRateLimited) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrRemoteTransient) || errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	for _, kw := range transientKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
