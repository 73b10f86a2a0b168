package orchestrator

import "sync/atomic"

// CancelToken is a cooperative boolean latch shared by the goroutines of a
// single ingest call. Setting it never unwinds work already committed;
// the next checkpoint (Start, EmbedBatch, pre-upsert, pre-index) observes
// it and halts instead.
type CancelToken struct {
	flag atomic.Bool
}

// NewCancelToken returns a token in the not-cancelled state.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel sets the latch. Idempotent.
func (t *CancelToken) Cancel() {
	if t == nil {
		return
	}
	t.flag.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.flag.Load()
}

// errCanceled is returned by a checkpoint that observes a set token.
var errCanceled = canceledError{}

type canceledError struct{}

func (canceledError) Error() string { return "canceled" }

// checkpoint returns errCanceled if token has been cancelled, nil otherwise.
// A nil token never cancels, so callers that don't need cancellation can
// pass nil through the pipeline.
func checkpoint(token *CancelToken) error {
	if token.Cancelled() {
		return errCanceled
	}
	return nil
}

// IsCanceled reports whether err is the sentinel returned by a checkpoint.
func IsCanceled(err error) bool {
	return err == errCanceled
}
