package core

import "context"

// LLMProvider produces one assistant completion for a prepared message list.
// Implementations make a single attempt; retrying is the caller's decision.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message) (Message, error)
}

// Embedder turns text into a fixed-length vector, deterministic for a given
// model version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DocumentLoader extracts plain text from an uploaded file. The file type is
// derived from the filename extension.
type DocumentLoader interface {
	Load(filename string, data []byte) (string, error)
}
