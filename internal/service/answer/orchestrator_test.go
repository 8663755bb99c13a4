package answer

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/docqa/internal/core"
	"github.com/sandevgo/docqa/internal/service/session"
	"github.com/sandevgo/docqa/internal/storage/sqlite"
	"github.com/sandevgo/docqa/internal/vectorstore"
)

type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 16)
	for i, b := range []byte(text) {
		v[(i+int(b))%len(v)] += float32(b)
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range v {
			v[i] = float32(float64(v[i]) / norm)
		}
	}
	return v, nil
}

// fakeLLM returns a canned reply, an error, or blocks until the context
// deadline hits. It records the prompt it was handed and how many calls ran
// at once.
type fakeLLM struct {
	reply string
	err   error
	delay time.Duration

	mu          sync.Mutex
	lastPrompt  []core.Message
	inFlight    int
	maxInFlight int
}

func (f *fakeLLM) Chat(ctx context.Context, messages []core.Message) (core.Message, error) {
	f.mu.Lock()
	f.lastPrompt = messages
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return core.Message{}, fmt.Errorf("%w: chat completion: %w", core.ErrUpstreamTimeout, ctx.Err())
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return core.Message{}, f.err
	}
	return core.Message{Role: core.RoleAssistant, Content: f.reply}, nil
}

type testEnv struct {
	orchestrator *Orchestrator
	store        *sqlite.SessionStore
	llm          *fakeLLM
	clientID     string
}

func newTestEnv(t *testing.T, llm *fakeLLM, llmTimeout time.Duration) *testEnv {
	t.Helper()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	db, err := sqlite.NewDB(ctx, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := sqlite.NewSessionStore(db, dbPath, time.Hour)
	sessions := session.NewManager(store, time.Hour, 10, 20)

	registry, err := vectorstore.NewRegistry(t.TempDir(), hashEmbedder{})
	require.NoError(t, err)

	clientID, err := registry.ResolveOrCreate(ctx, "client_test")
	require.NoError(t, err)
	_, err = registry.Ingest(ctx, clientID, []core.Chunk{
		{Text: "the warranty covers two years of repairs", Source: "warranty.txt", Index: 0},
		{Text: "batteries are excluded from coverage", Source: "warranty.txt", Index: 1},
	})
	require.NoError(t, err)

	return &testEnv{
		orchestrator: NewOrchestrator(registry, sessions, llm, 3, llmTimeout),
		store:        store,
		llm:          llm,
		clientID:     clientID,
	}
}

func TestOrchestrator_AnswerSuccess(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{reply: "two years"}, 5*time.Second)
	ctx := context.Background()

	res, err := env.orchestrator.Answer(ctx, env.clientID, "", "how long is the warranty?")
	require.NoError(t, err)

	assert.Equal(t, "two years", res.Response)
	assert.Equal(t, env.clientID, res.ClientID)
	assert.NotEmpty(t, res.SessionID)
	assert.NotEmpty(t, res.Sources)

	// Both turn halves are durable.
	messages, err := env.store.GetMessages(ctx, res.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, core.RoleUser, messages[0].Role)
	assert.Equal(t, "how long is the warranty?", messages[0].Content)
	assert.Equal(t, core.RoleAssistant, messages[1].Role)
	assert.Equal(t, "two years", messages[1].Content)
}

func TestOrchestrator_PromptCarriesContextAndHistory(t *testing.T) {
	llm := &fakeLLM{reply: "covered"}
	env := newTestEnv(t, llm, 5*time.Second)
	ctx := context.Background()

	first, err := env.orchestrator.Answer(ctx, env.clientID, "", "what does the warranty cover?")
	require.NoError(t, err)

	_, err = env.orchestrator.Answer(ctx, env.clientID, first.SessionID, "and batteries?")
	require.NoError(t, err)

	prompt := llm.lastPrompt
	require.NotEmpty(t, prompt)
	assert.Equal(t, core.RoleSystem, prompt[0].Role)
	assert.Contains(t, prompt[0].Content, "warranty covers two years")

	// The previous turn precedes the new question.
	require.GreaterOrEqual(t, len(prompt), 4)
	assert.Equal(t, "what does the warranty cover?", prompt[1].Content)
	assert.Equal(t, "covered", prompt[2].Content)
	assert.Equal(t, "and batteries?", prompt[len(prompt)-1].Content)

	// The new question appears once, not duplicated from the memory view.
	occurrences := 0
	for _, msg := range prompt {
		if msg.Content == "and batteries?" {
			occurrences++
		}
	}
	assert.Equal(t, 1, occurrences)
}

func TestOrchestrator_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{reply: "ok"}, 5*time.Second)
	ctx := context.Background()

	_, err := env.orchestrator.Answer(ctx, env.clientID, "", "")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = env.orchestrator.Answer(ctx, "", "", "hello")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestOrchestrator_UnknownClientCreatesNoSession(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{reply: "ok"}, 5*time.Second)
	ctx := context.Background()

	_, err := env.orchestrator.Answer(ctx, "client_unknown", "", "hello")
	assert.ErrorIs(t, err, core.ErrValidation)

	stats, err := env.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalSessions)
}

func TestOrchestrator_LLMFailureKeepsUserMessage(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{err: fmt.Errorf("%w: boom", core.ErrUpstreamFailure)}, 5*time.Second)
	ctx := context.Background()

	_, err := env.orchestrator.Answer(ctx, env.clientID, "sess-1", "hello")
	assert.ErrorIs(t, err, core.ErrUpstreamFailure)

	// The question survived even though no answer was produced.
	messages, err := env.store.GetMessages(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, core.RoleUser, messages[0].Role)
}

func TestOrchestrator_SerializesTurnsPerSession(t *testing.T) {
	llm := &fakeLLM{reply: "ok", delay: 50 * time.Millisecond}
	env := newTestEnv(t, llm, 5*time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.orchestrator.Answer(ctx, env.clientID, "sess-1", "hello")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// All four turns ran against one session; none may overlap.
	assert.Equal(t, 1, llm.maxInFlight)

	messages, err := env.store.GetMessages(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Len(t, messages, 8)
}

func TestOrchestrator_LLMTimeout(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{reply: "late", delay: 300 * time.Millisecond}, 20*time.Millisecond)
	ctx := context.Background()

	_, err := env.orchestrator.Answer(ctx, env.clientID, "sess-1", "hello")
	assert.ErrorIs(t, err, core.ErrUpstreamTimeout)
}
