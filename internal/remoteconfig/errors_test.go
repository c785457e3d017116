package remoteconfig

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeNetError struct{ msg string }

func (e *fakeNetError) Error() string   { return e.msg }
func (e *fakeNetError) Timeout() bool   { return true }
func (e *fakeNetError) Temporary() bool { return true }

var _ net.Error = (*fakeNetError)(nil)

func TestRemoteConfigError_Error(t *testing.T) {
	withCause := NewError(KindTransient, "upstream unavailable", errors.New("dial tcp: refused"))
	assert.Equal(t, "transient: upstream unavailable: dial tcp: refused", withCause.Error())

	withoutCause := NewError(KindAuth, "forbidden", nil)
	assert.Equal(t, "auth: forbidden", withoutCause.Error())
}

func TestRemoteConfigError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(KindTransient, "wrapped", cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsFailoverable(t *testing.T) {
	assert.True(t, IsFailoverable(NewError(KindTransient, "x", nil)))
	assert.False(t, IsFailoverable(NewError(KindAuth, "x", nil)))
	assert.False(t, IsFailoverable(NewError(KindInvalidConfig, "x", nil)))
	assert.True(t, IsFailoverable(&fakeNetError{msg: "connection reset"}))
	assert.False(t, IsFailoverable(errors.New("plain error")))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(NewError(KindCancelled, "x", nil)))
	assert.True(t, IsCancelled(context.Canceled))
	assert.True(t, IsCancelled(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, IsCancelled(errors.New("plain")))
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusRequestTimeout, KindTransient},
		{http.StatusTooManyRequests, KindTransient},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusBadRequest, KindInvalidConfig},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyHTTPStatus(tt.status), "status %d", tt.status)
	}
}

func TestAggregateError(t *testing.T) {
	var agg AggregateError
	assert.Nil(t, agg.Last())

	first := errors.New("attempt 1")
	second := errors.New("attempt 2")
	agg.Attempts = append(agg.Attempts, first, second)

	assert.Equal(t, second, agg.Last())
	assert.Contains(t, agg.Error(), "2 attempt(s)")
	assert.ErrorIs(t, &agg, second)
}

func TestTryRefreshSwallows(t *testing.T) {
	assert.True(t, tryRefreshSwallows(NewError(KindTransient, "x", nil)))
	assert.True(t, tryRefreshSwallows(NewError(KindAuth, "x", nil)))
	assert.True(t, tryRefreshSwallows(NewError(KindAdapterFailure, "x", nil)))
	assert.True(t, tryRefreshSwallows(NewError(KindCancelled, "x", nil)))
	assert.True(t, tryRefreshSwallows(NewError(KindTimeout, "x", nil)))
	assert.False(t, tryRefreshSwallows(NewError(KindInvalidConfig, "x", nil)))
	assert.False(t, tryRefreshSwallows(NewError(KindNotFound, "x", nil)))
}
