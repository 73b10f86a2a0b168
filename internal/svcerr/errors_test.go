package svcerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("connection refused")

	// When: wrapping with Error
	wrapped := New(ErrCodeEmbedderUnavailable, "embedder unreachable", originalErr)

	// Then: unwrapping returns the original error
	require.NotNil(t, wrapped)
	assert.Equal(t, originalErr, errors.Unwrap(wrapped))
	assert.True(t, errors.Is(wrapped, originalErr))
}

func TestError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "store error",
			code:     ErrCodeStoreNotFound,
			message:  "chunk not found",
			expected: "[ERR_101_STORE_NOT_FOUND] chunk not found",
		},
		{
			name:     "index error",
			code:     ErrCodeIndexDimensionMismatch,
			message:  "expected 768 dims, got 512",
			expected: "[ERR_202_INDEX_DIMENSION_MISMATCH] expected 768 dims, got 512",
		},
		{
			name:     "embedder error",
			code:     ErrCodeEmbedderTimeout,
			message:  "embed call timed out",
			expected: "[ERR_302_EMBEDDER_TIMEOUT] embed call timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with the same code
	err1 := New(ErrCodeStoreNotFound, "chunk A missing", nil)
	err2 := New(ErrCodeStoreNotFound, "chunk B missing", nil)

	// Then: they match by code
	assert.True(t, errors.Is(err1, err2))
}

func TestError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeStoreNotFound, "chunk missing", nil)
	err2 := New(ErrCodeIndexCorrupt, "index corrupt", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestError_WithDetailAndSuggestion_ChainAndPersist(t *testing.T) {
	err := New(ErrCodeInvalidFilter, "unsupported operator", nil).
		WithDetail("field", "created_at").
		WithSuggestion("use one of: eq, lt, gt, in")

	assert.Equal(t, "created_at", err.Details["field"])
	assert.Equal(t, "use one of: eq, lt, gt, in", err.Suggestion)
}

func TestNew_DerivesCategorySeverityAndRetryable(t *testing.T) {
	tests := []struct {
		code          string
		wantCategory  Category
		wantSeverity  Severity
		wantRetryable bool
	}{
		{ErrCodeStoreNotFound, CategoryStore, SeverityError, false},
		{ErrCodeStoreCorrupt, CategoryStore, SeverityFatal, false},
		{ErrCodeIndexCorrupt, CategoryIndex, SeverityFatal, false},
		{ErrCodeEmbedderUnavailable, CategoryEmbedder, SeverityWarning, true},
		{ErrCodeEmbedderTimeout, CategoryEmbedder, SeverityWarning, true},
		{ErrCodeInvalidQuery, CategoryOrchestrator, SeverityError, false},
		{ErrCodeInternal, CategoryService, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
			assert.Equal(t, tt.wantSeverity, err.Severity)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWrap_UsesUnderlyingMessage(t *testing.T) {
	cause := errors.New("disk quota exceeded")
	err := Wrap(ErrCodeStoreDiskFull, cause)
	require.NotNil(t, err)
	assert.Equal(t, "disk quota exceeded", err.Message)
	assert.Equal(t, cause, err.Cause)
}

func TestIsRetryable_TrueOnlyForRetryableCodes(t *testing.T) {
	retryable := New(ErrCodeEmbedderTimeout, "timed out", nil)
	fatal := New(ErrCodeStoreCorrupt, "corrupt", nil)

	assert.True(t, IsRetryable(retryable))
	assert.False(t, IsRetryable(fatal))
	assert.False(t, IsRetryable(errors.New("plain error")))
	assert.False(t, IsRetryable(nil))
}

func TestIsFatal_TrueOnlyForFatalSeverity(t *testing.T) {
	fatal := New(ErrCodeIndexCorrupt, "corrupt", nil)
	warning := New(ErrCodeEmbedderTimeout, "timed out", nil)

	assert.True(t, IsFatal(fatal))
	assert.False(t, IsFatal(warning))
	assert.False(t, IsFatal(nil))
}

func TestGetCodeAndCategory_ExtractFromError(t *testing.T) {
	err := New(ErrCodeIndexSnapshotInvalid, "bad snapshot", nil)

	assert.Equal(t, ErrCodeIndexSnapshotInvalid, GetCode(err))
	assert.Equal(t, CategoryIndex, GetCategory(err))

	plain := errors.New("plain error")
	assert.Equal(t, "", GetCode(plain))
	assert.Equal(t, Category(""), GetCategory(plain))
}
