package answer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sandevgo/docqa/internal/core"
	"github.com/sandevgo/docqa/internal/service/session"
	"github.com/sandevgo/docqa/internal/vectorstore"
	"github.com/sandevgo/docqa/pkg/log"
)

// Answer is the outcome of one chat turn.
type Answer struct {
	Response  string             `json:"response"`
	SessionID string             `json:"session_id"`
	ClientID  string             `json:"client_id"`
	Sources   []core.SourceChunk `json:"sources"`
}

// Orchestrator composes retrieval, conversation memory and the LLM into one
// request/response cycle.
type Orchestrator struct {
	registry   *vectorstore.Registry
	sessions   *session.Manager
	llm        core.LLMProvider
	topK       int
	llmTimeout time.Duration
}

func NewOrchestrator(registry *vectorstore.Registry, sessions *session.Manager, llm core.LLMProvider, topK int, llmTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		sessions:   sessions,
		llm:        llm,
		topK:       topK,
		llmTimeout: llmTimeout,
	}
}

// Answer resolves the client's collection, retrieves relevant chunks, runs
// one bounded LLM call and records the turn. The user message is persisted
// before the LLM call: if the model fails, the turn stays incomplete in the
// store and the caller may resubmit to the same session.
func (o *Orchestrator) Answer(ctx context.Context, clientID, sessionID, message string) (Answer, error) {
	if message == "" {
		return Answer{}, fmt.Errorf("message is required: %w", core.ErrValidation)
	}
	if clientID == "" {
		return Answer{}, fmt.Errorf("client_id is required, ingest documents first: %w", core.ErrValidation)
	}
	if !o.registry.Exists(clientID) {
		return Answer{}, fmt.Errorf("no documents found for client %q, ingest documents first: %w", clientID, core.ErrValidation)
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	logger := log.FromCtx(ctx)
	logger.Info().Str("client_id", clientID).Str("session_id", sessionID).Msg("processing chat request")

	sources, err := o.registry.Query(ctx, clientID, message, o.topK)
	if err != nil {
		return Answer{}, err
	}

	// One turn at a time per session: concurrent chats against the same
	// session must not interleave their view of the memory. The lock is held
	// across hydration too, so a freshly rebuilt conversation cannot race a
	// turn already in flight.
	endTurn := o.sessions.BeginTurn(sessionID)
	defer endTurn()

	conv, err := o.sessions.GetOrCreateConversation(ctx, sessionID)
	if err != nil {
		return Answer{}, err
	}

	prompt := buildPrompt(sources, conv.Window(), message)

	if err := o.sessions.RecordTurn(ctx, sessionID, core.RoleUser, message); err != nil {
		return Answer{}, err
	}

	llmCtx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	defer cancel()

	reply, err := o.llm.Chat(llmCtx, prompt)
	if err != nil {
		// The user message is already durable; drop only the cached view so
		// the next request rebuilds a consistent conversation.
		o.sessions.Evict(sessionID)
		return Answer{}, err
	}

	if err := o.sessions.RecordTurn(ctx, sessionID, core.RoleAssistant, reply.Content); err != nil {
		o.sessions.Evict(sessionID)
		return Answer{}, err
	}

	return Answer{
		Response:  reply.Content,
		SessionID: sessionID,
		ClientID:  clientID,
		Sources:   sources,
	}, nil
}
