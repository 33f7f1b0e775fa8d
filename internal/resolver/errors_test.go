package resolver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	err := NewError(ErrNotFound, "no subtitles for video")
	assert.Equal(t, "[NotFound] no subtitles for video", err.Error())

	cause := errors.New("connection refused")
	wrapped := WrapError(cause, ErrProvider, "search request failed")
	assert.Contains(t, wrapped.Error(), "search request failed")
	assert.Contains(t, wrapped.Error(), "connection refused")
	assert.ErrorIs(t, wrapped, cause)
}

func TestErrorContext(t *testing.T) {
	t.Parallel()

	err := NewError(ErrParse, "bad timestamp").
		WithContext("line", 12).
		WithContext("file_url", "https://example.com/sub.srt")

	assert.Equal(t, 12, err.Context["line"])
	assert.Equal(t, "https://example.com/sub.srt", err.Context["file_url"])
}

func TestIsKind(t *testing.T) {
	t.Parallel()

	err := NewError(ErrRateLimit, "quota exhausted")
	assert.True(t, IsKind(err, ErrRateLimit))
	assert.False(t, IsKind(err, ErrProvider))

	// works through wrapping layers
	outer := fmt.Errorf("while searching: %w", err)
	assert.True(t, IsKind(outer, ErrRateLimit))

	assert.False(t, IsKind(errors.New("plain"), ErrRateLimit))
	assert.False(t, IsKind(nil, ErrRateLimit))
}

func TestErrorKindStrings(t *testing.T) {
	t.Parallel()

	cases := map[ErrorKind]string{
		ErrParse:      "Parse",
		ErrNotFound:   "NotFound",
		ErrProvider:   "Provider",
		ErrRateLimit:  "RateLimit",
		ErrProcessing: "Processing",
		ErrCache:      "Cache",
		ErrValidation: "Validation",
		ErrStorage:    "Storage",
		ErrUnknown:    "Unknown",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
	require.Equal(t, "Unknown", ErrorKind(99).String())
}
