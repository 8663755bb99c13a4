package ingest

import (
	"context"
	"fmt"

	"github.com/sandevgo/docqa/internal/core"
	"github.com/sandevgo/docqa/internal/providers/loader"
	"github.com/sandevgo/docqa/internal/vectorstore"
	"github.com/sandevgo/docqa/pkg/log"
)

// File is one uploaded document.
type File struct {
	Name string
	Data []byte
}

// FileResult reports one file's outcome inside a batch.
type FileResult struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Chunks   int    `json:"chunks"`
	Error    string `json:"error,omitempty"`
}

// Result is the batch outcome. A batch with some failed files is still a
// success; per-file problems are enumerated, not fatal.
type Result struct {
	ClientID           string       `json:"client_id"`
	DocumentsProcessed int          `json:"documents_processed"`
	ChunksCreated      int          `json:"chunks_created"`
	Files              []FileResult `json:"files"`
}

// Ingestor turns uploaded files into indexed chunks in a client's
// collection.
type Ingestor struct {
	loader   core.DocumentLoader
	tok      loader.Tokenizer
	registry *vectorstore.Registry
}

func NewIngestor(docLoader core.DocumentLoader, tok loader.Tokenizer, registry *vectorstore.Registry) *Ingestor {
	return &Ingestor{loader: docLoader, tok: tok, registry: registry}
}

// IngestFiles extracts, chunks and indexes a batch of files. The collection
// is created lazily, only once at least one file has produced chunks, so a
// fully failed batch never registers a client id.
func (i *Ingestor) IngestFiles(ctx context.Context, clientID string, files []File, cfg loader.ChunkerConfig) (Result, error) {
	if len(files) == 0 {
		return Result{}, fmt.Errorf("no files provided: %w", core.ErrValidation)
	}

	logger := log.FromCtx(ctx)
	chunker := loader.NewChunker(i.tok, cfg)

	result := Result{Files: make([]FileResult, 0, len(files))}
	perFile := make([][]core.Chunk, 0, len(files))

	for _, file := range files {
		text, err := i.loader.Load(file.Name, file.Data)
		if err != nil {
			logger.Warn().Err(err).Str("file", file.Name).Msg("failed to load file")
			result.Files = append(result.Files, FileResult{Filename: file.Name, Status: "failed", Error: err.Error()})
			continue
		}

		chunks := chunker.Split(text, file.Name)
		if len(chunks) == 0 {
			result.Files = append(result.Files, FileResult{Filename: file.Name, Status: "failed", Error: "no text extracted"})
			continue
		}

		perFile = append(perFile, chunks)
		result.Files = append(result.Files, FileResult{Filename: file.Name, Status: "ok", Chunks: len(chunks)})
		result.DocumentsProcessed++
	}

	if result.DocumentsProcessed == 0 {
		return result, fmt.Errorf("no documents could be processed: %w", core.ErrValidation)
	}

	resolved, err := i.registry.ResolveOrCreate(ctx, clientID)
	if err != nil {
		return result, err
	}
	result.ClientID = resolved

	for _, chunks := range perFile {
		n, err := i.registry.Ingest(ctx, resolved, chunks)
		if err != nil {
			return result, err
		}
		result.ChunksCreated += n
	}

	logger.Info().
		Str("client_id", resolved).
		Int("documents", result.DocumentsProcessed).
		Int("chunks", result.ChunksCreated).
		Msg("ingestion completed")
	return result, nil
}
