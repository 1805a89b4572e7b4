package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessageIncludesCause(t *testing.T) {
	err := Wrap(errors.New("dial tcp: refused"), KindNetwork, "fetch failed")
	assert.Equal(t, "fetch failed: dial tcp: refused", err.Error())

	bare := New(KindInvalidURL, "url is required")
	assert.Equal(t, "url is required", bare.Error())
}

func TestKindOf_ThroughErisWrap(t *testing.T) {
	base := New(KindRateLimited, "slow down")
	wrapped := eris.Wrap(base, "extract: call")

	assert.Equal(t, KindRateLimited, KindOf(wrapped))
	ae, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "slow down", ae.Message)
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestIs_NestedKinds(t *testing.T) {
	inner := New(KindTimeout, "completion timed out")
	outer := Wrap(inner, KindExtractionFailed, "could not extract")

	assert.True(t, Is(outer, KindExtractionFailed))
	assert.True(t, Is(outer, KindTimeout))
	assert.False(t, Is(outer, KindRateLimited))
	assert.False(t, Is(errors.New("plain"), KindTimeout))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindDuplicate, http.StatusConflict},
		{KindInvalidContent, http.StatusBadRequest},
		{KindInvalidURL, http.StatusBadRequest},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindScrapeFailed, http.StatusInternalServerError},
		{KindExtractionFailed, http.StatusInternalServerError},
		{KindUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}
