package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCancelToken_StartsNotCancelled(t *testing.T) {
	tok := NewCancelToken()
	assert.False(t, tok.Cancelled())
	assert.NoError(t, checkpoint(tok))
}

func TestCancelToken_CancelIsObservedAtCheckpoint(t *testing.T) {
	tok := NewCancelToken()
	tok.Cancel()

	assert.True(t, tok.Cancelled())
	err := checkpoint(tok)
	assert.True(t, IsCanceled(err))
}

func TestCancelToken_CancelIsIdempotent(t *testing.T) {
	tok := NewCancelToken()
	tok.Cancel()
	tok.Cancel()
	assert.True(t, tok.Cancelled())
}

func TestCheckpoint_NilTokenNeverCancels(t *testing.T) {
	var tok *CancelToken
	assert.False(t, tok.Cancelled())
	assert.NoError(t, checkpoint(tok))
}
