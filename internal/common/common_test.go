package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry(t *testing.T) {
	errTransient := errors.New("database is locked")

	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   error
	}{
		{name: "succeeds first try", failures: 0, wantCalls: 1},
		{name: "succeeds after transient failures", failures: 2, err: errTransient, wantCalls: 3},
		{name: "gives up after max attempts", failures: 5, err: errTransient, wantCalls: 3, wantErr: ErrMaxRetries},
		{
			name:      "non retryable returns immediately",
			failures:  5,
			err:       &RetryableError{Err: errTransient, Retryable: false},
			wantCalls: 1,
		},
		{
			name:      "invalid subject is not retried",
			failures:  5,
			err:       &InvalidSubjectError{SubjectID: "s1", Reason: "empty"},
			wantCalls: 1,
			wantErr:   ErrInvalidSubject,
		},
		{
			name:      "pinned is not retried",
			failures:  5,
			err:       ErrPinned,
			wantCalls: 1,
			wantErr:   ErrPinned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetry(context.Background(), func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			}, RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})

			assert.Equal(t, tt.wantCalls, calls)
			switch {
			case tt.wantErr != nil:
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.failures >= tt.wantCalls && tt.failures > 0:
				require.Error(t, err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, func() error {
		return errors.New("boom")
	}, RetryOptions{MaxAttempts: 3, InitialDelay: time.Second})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: true}))
	assert.False(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: false}))
	assert.False(t, IsRetryable(ErrInvalidSubject))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"WARN":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in).String(), in)
	}
}

func TestFoldText(t *testing.T) {
	assert.Equal(t, "electricite straße", FoldText("ÉLECTRICITÉ Straße"))
	assert.Equal(t, "gaz naturel", FoldText("Gaz Naturel"))
}
