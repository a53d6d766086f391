package domain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorIs(t *testing.T) {
	err := fmt.Errorf("collect: %w", Validationf("file not found: %s", "/x"))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "collect: file not found: /x", err.Error())

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestInvalidPathIs(t *testing.T) {
	err := InvalidPath(ErrNotDirectory, "path is not a directory: %s", "/tmp/a.md")
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, ErrNotDirectory)
	assert.NotErrorIs(t, err, ErrNotFile)
	assert.Equal(t, "path is not a directory: /tmp/a.md", err.Error())
}

func TestIoErrorIs(t *testing.T) {
	err := &IoError{Path: "/tmp/a", Err: os.ErrNotExist}
	assert.True(t, errors.Is(err, ErrIO))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient sentinel", fmt.Errorf("upload: %w", ErrRemoteTransient), true},
		{"wait timeout", &RemoteError{Op: "delete", Title: "a.md", Err: ErrTimeout}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"keyword", errors.New("Target closed unexpectedly"), true},
		{"net keyword", errors.New("net::ERR_CONNECTION_RESET"), true},
		{"auth", fmt.Errorf("%w: redirected to login", ErrRemoteAuth), false},
		{"auth wins over keyword", fmt.Errorf("connection: %w", ErrRemoteAuth), false},
		{"validation", Validationf("bad size"), false},
		{"canceled", context.Canceled, false},
		{"ui", fmt.Errorf("%w: add source button", ErrRemoteUI), false},
		{"fail-fast abort", fmt.Errorf("%w: remove %q: operation timed out", ErrAborted, "a.md"), false},
		{"rate limit wins over keyword", fmt.Errorf("ask: connection: %w", ErrRateLimited), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestPlanOrdering(t *testing.T) {
	p := Plan{
		ToAdd:    []string{"a"},
		ToUpdate: []string{"u"},
		ToDelete: []string{"d"},
	}
	assert.Equal(t, []string{"d", "u"}, p.Removals())
	assert.Equal(t, []string{"a", "u"}, p.Uploads())
	assert.False(t, p.IsEmpty())
	assert.True(t, Plan{Unchanged: []string{"x"}}.IsEmpty())
}
