package mcpserver

// IngestFileInput is the input schema for the ingest_file tool.
type IngestFileInput struct {
	Path  string `json:"path" jsonschema:"absolute or relative path to the file to ingest"`
	DocID string `json:"doc_id,omitempty" jsonschema:"document id to assign; a fresh id is generated when omitted"`
}

// IngestOutput is the output schema shared by the ingest tools.
type IngestOutput struct {
	DocID   string `json:"doc_id" jsonschema:"the document id the ingested content was stored under"`
	ChunkID string `json:"chunk_id,omitempty" jsonschema:"the chunk id produced, when a single chunk was ingested"`
}

// IngestTextInput is the input schema for the ingest_text tool.
type IngestTextInput struct {
	Text  string `json:"text" jsonschema:"literal text to ingest as a single chunk"`
	DocID string `json:"doc_id,omitempty" jsonschema:"document id to assign; a fresh id is generated when omitted"`
}

// SearchTextInput is the input schema for the search_text tool.
type SearchTextInput struct {
	Query string `json:"query" jsonschema:"the search query to execute"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	DocID string `json:"doc_id,omitempty" jsonschema:"restrict results to this document id"`
}

// SearchHybridInput is the input schema for the search_hybrid tool.
type SearchHybridInput struct {
	Query        string  `json:"query" jsonschema:"the search query to execute"`
	Limit        int     `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	DocID        string  `json:"doc_id,omitempty" jsonschema:"restrict results to this document id"`
	TextWeight   float64 `json:"text_weight,omitempty" jsonschema:"weight given to the lexical score, default 0.5"`
	VectorWeight float64 `json:"vector_weight,omitempty" jsonschema:"weight given to the vector score, default 0.5"`
}

// SearchOutput is the output schema shared by the search tools.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"list of search results, highest score first"`
}

// SearchResultOutput is a single scored chunk.
type SearchResultOutput struct {
	ChunkID    string  `json:"chunk_id" jsonschema:"id of the matched chunk"`
	DocID      string  `json:"doc_id" jsonschema:"id of the document the chunk belongs to"`
	Score      float64 `json:"score" jsonschema:"fused or lexical relevance score, larger is better"`
	SourceURI  string  `json:"source_uri,omitempty" jsonschema:"origin of the ingested content"`
	SourceMIME string  `json:"source_mime,omitempty" jsonschema:"MIME type of the ingested content"`
	PageStart  int     `json:"page_start,omitempty" jsonschema:"first source page the chunk spans, when known"`
	PageEnd    int     `json:"page_end,omitempty" jsonschema:"last source page the chunk spans, when known"`
	Text       string  `json:"text" jsonschema:"matched chunk text"`
}

// DeleteByFilterInput is the input schema for the delete_by_filter tool.
type DeleteByFilterInput struct {
	DocID     string `json:"doc_id" jsonschema:"delete every chunk belonging to this document id"`
	BatchSize int    `json:"batch_size,omitempty" jsonschema:"number of ids deleted per batch, default 100"`
}

// DeleteByFilterOutput is the output schema for the delete_by_filter tool.
type DeleteByFilterOutput struct {
	TotalIDs             int `json:"total_ids" jsonschema:"number of chunk ids matched"`
	DBDeleted            int `json:"db_deleted" jsonschema:"number of rows removed from the primary store"`
	TextDeleteAttempts   int `json:"text_delete_attempts" jsonschema:"number of deletes issued to the lexical index"`
	VectorDeleteAttempts int `json:"vector_delete_attempts" jsonschema:"number of deletes issued to the vector index"`
	Batches              int `json:"batches" jsonschema:"number of batches the deletion ran in"`
}

// RepoCountsInput is the (empty) input schema for the repo_counts tool.
type RepoCountsInput struct{}

// RepoCountsOutput is the output schema for the repo_counts tool.
type RepoCountsOutput struct {
	ChunkCount      int `json:"chunk_count" jsonschema:"number of chunks in the primary store"`
	TextMirrorCount int `json:"text_mirror_count" jsonschema:"number of chunks mirrored into the lexical index"`
}
