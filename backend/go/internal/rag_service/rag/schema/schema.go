package schema

// Page is the extracted text of a single PDF page.
type Page struct {
	// Number is the 1-based page number in the source document.
	Number int
	Text   string
}

// Chunk is a bounded unit of document text, stored and retrieved as one context item.
// Chunks are immutable once created.
type Chunk struct {
	// ID is an opaque unique identifier.
	ID string
	// Content is the chunk text.
	Content string
	// SourceID identifies the originating document (the uploaded filename).
	SourceID string
	// Size is the character length of Content.
	Size int
}

// Record is a persisted chunk together with its embedding.
type Record struct {
	Chunk
	Embedding []float32
}

// ScoredChunk is a vector store hit. Higher scores are better.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// SearchResult is what the retriever hands to context assembly and to callers.
type SearchResult struct {
	Content  string  `json:"content"`
	SourceID string  `json:"source_id"`
	Score    float64 `json:"score"`
}

// Answer is a generated reply together with the context it was grounded on.
type Answer struct {
	Text    string         `json:"text"`
	Sources []SearchResult `json:"sources"`
}
