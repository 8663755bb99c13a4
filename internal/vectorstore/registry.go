package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/sandevgo/docqa/internal/core"
	"github.com/sandevgo/docqa/pkg/log"
)

const (
	clientIDPrefix   = "client_"
	collectionPrefix = "docs_"
)

// Registry maps client ids to isolated chromem collections. It owns identity
// management and collection lifecycle; vector search itself is chromem's job.
// Every operation derives the collection name from the resolved client id
// alone, so one tenant's queries can never touch another's partition.
type Registry struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc

	mu       sync.Mutex
	modified map[string]time.Time
}

// NewRegistry opens (or creates) the persistent vector store at path.
func NewRegistry(path string, embedder core.Embedder) (*Registry, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	return &Registry{
		db: db,
		embed: func(ctx context.Context, text string) ([]float32, error) {
			return embedder.Embed(ctx, text)
		},
		modified: make(map[string]time.Time),
	}, nil
}

// ResolveOrCreate returns a usable client id. An empty or placeholder id gets
// a freshly generated one, collision-checked against existing collections;
// a supplied id gets its collection created lazily if absent.
func (r *Registry) ResolveOrCreate(ctx context.Context, clientID string) (string, error) {
	if isPlaceholder(clientID) {
		generated, err := r.generateClientID()
		if err != nil {
			return "", err
		}
		clientID = generated
		log.FromCtx(ctx).Info().Str("client_id", clientID).Msg("generated new client id")
	} else {
		clientID = sanitizeClientID(clientID)
		if clientID == "" {
			return "", fmt.Errorf("client id has no usable characters: %w", core.ErrValidation)
		}
	}

	if _, err := r.db.GetOrCreateCollection(collectionName(clientID), nil, r.embed); err != nil {
		return "", fmt.Errorf("%w: create collection: %w", core.ErrStorage, err)
	}
	return clientID, nil
}

// Ingest appends chunks to the client's collection. Returns ErrNotFound if
// the collection was deleted out from under the request.
func (r *Registry) Ingest(ctx context.Context, clientID string, chunks []core.Chunk) (int, error) {
	col := r.db.GetCollection(collectionName(clientID), r.embed)
	if col == nil {
		return 0, fmt.Errorf("collection for client %q: %w", clientID, core.ErrNotFound)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	now := time.Now()
	docs := make([]chromem.Document, 0, len(chunks))
	for _, chunk := range chunks {
		docs = append(docs, chromem.Document{
			ID:      uuid.NewString(),
			Content: chunk.Text,
			Metadata: map[string]string{
				"client_id":   clientID,
				"source":      chunk.Source,
				"chunk_index": strconv.Itoa(chunk.Index),
				"uploaded_at": strconv.FormatInt(now.Unix(), 10),
			},
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("%w: add documents: %w", core.ErrUpstreamFailure, err)
	}

	r.mu.Lock()
	r.modified[clientID] = now
	r.mu.Unlock()

	log.FromCtx(ctx).Info().Str("client_id", clientID).Int("chunks", len(docs)).Msg("chunks ingested")
	return len(docs), nil
}

// Query runs a similarity search scoped to the client's collection. Zero
// results is a valid outcome; a missing collection is ErrNotFound.
func (r *Registry) Query(ctx context.Context, clientID, queryText string, topK int) ([]core.SourceChunk, error) {
	col := r.db.GetCollection(collectionName(clientID), r.embed)
	if col == nil {
		return nil, fmt.Errorf("collection for client %q: %w", clientID, core.ErrNotFound)
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := col.Query(ctx, queryText, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query collection: %w", core.ErrUpstreamFailure, err)
	}

	chunks := make([]core.SourceChunk, 0, len(results))
	for _, res := range results {
		chunks = append(chunks, core.SourceChunk{
			Content: res.Content,
			Source:  res.Metadata["source"],
			Score:   res.Similarity,
		})
	}
	return chunks, nil
}

// Exists reports whether the client has a collection.
func (r *Registry) Exists(clientID string) bool {
	return r.db.GetCollection(collectionName(clientID), r.embed) != nil
}

// ListCollections returns every known client with its document count,
// ordered by client id.
func (r *Registry) ListCollections() []core.CollectionInfo {
	var infos []core.CollectionInfo
	for name, col := range r.db.ListCollections() {
		clientID, ok := strings.CutPrefix(name, collectionPrefix)
		if !ok {
			continue
		}
		infos = append(infos, core.CollectionInfo{
			ClientID:      clientID,
			DocumentCount: col.Count(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ClientID < infos[j].ClientID })
	return infos
}

// Stats reports on one client's collection. A missing collection yields
// Exists=false, not an error.
func (r *Registry) Stats(clientID string) core.CollectionStats {
	col := r.db.GetCollection(collectionName(clientID), r.embed)
	if col == nil {
		return core.CollectionStats{ClientID: clientID}
	}

	r.mu.Lock()
	modified := r.modified[clientID]
	r.mu.Unlock()

	return core.CollectionStats{
		ClientID:      clientID,
		Exists:        true,
		DocumentCount: col.Count(),
		LastModified:  modified,
	}
}

// Delete irreversibly removes the client's collection and vectors.
// Idempotent: deleting an absent collection is a no-op.
func (r *Registry) Delete(ctx context.Context, clientID string) error {
	name := collectionName(clientID)
	if r.db.GetCollection(name, r.embed) == nil {
		return nil
	}
	if err := r.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("%w: delete collection: %w", core.ErrStorage, err)
	}

	r.mu.Lock()
	delete(r.modified, clientID)
	r.mu.Unlock()

	log.FromCtx(ctx).Info().Str("client_id", clientID).Msg("collection deleted")
	return nil
}

func (r *Registry) generateClientID() (string, error) {
	for range 10 {
		id := clientIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		if r.db.GetCollection(collectionName(id), r.embed) == nil {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: could not generate unique client id", core.ErrStorage)
}

func collectionName(clientID string) string {
	return collectionPrefix + sanitizeClientID(clientID)
}

// sanitizeClientID keeps letters, digits, '_' and '-' so the id maps to a
// valid collection name.
func sanitizeClientID(clientID string) string {
	var b strings.Builder
	for _, r := range clientID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isPlaceholder(clientID string) bool {
	switch strings.ToLower(strings.TrimSpace(clientID)) {
	case "", "string", "null", "none":
		return true
	}
	return false
}
