package orchestrator

// Stage names a checkpoint in the file-ingest pipeline.
type Stage string

const (
	StageStart       Stage = "start"
	StageEmbedBatch  Stage = "embed_batch"
	StageUpsertDb    Stage = "upsert_db"
	StageIndexText   Stage = "index_text"
	StageIndexVector Stage = "index_vector"
	StageSaveIndexes Stage = "save_indexes"
	StageFinished    Stage = "finished"
	StageCanceled    Stage = "canceled"
)

// ProgressEvent is one push notification from an ingest pipeline run. A
// caller who doesn't care about progress passes a nil channel and the
// pipeline skips emission entirely rather than blocking on an unread send.
type ProgressEvent struct {
	Stage Stage

	ChunksTotal int
	ChunksDone  int

	Err error
}

func emit(ch chan<- ProgressEvent, ev ProgressEvent) {
	if ch == nil {
		return
	}
	ch <- ev
}
