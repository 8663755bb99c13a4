package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sandevgo/docqa/internal/core"
)

// OpenAICompatible speaks the /v1/chat/completions dialect shared by Groq,
// OpenAI, OpenRouter and most self-hosted gateways.
type OpenAICompatible struct {
	baseProvider
	temperature float64
	maxTokens   int
}

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

func NewOpenAICompatible(cfg Config) *OpenAICompatible {
	return &OpenAICompatible{
		baseProvider: newBaseProvider(cfg.BaseURL, cfg.APIKey, cfg.Model),
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
	}
}

func (o *OpenAICompatible) Chat(ctx context.Context, messages []core.Message) (core.Message, error) {
	payload := map[string]any{
		"model":       o.model,
		"messages":    toWireMessages(messages),
		"temperature": o.temperature,
	}
	if o.maxTokens > 0 {
		payload["max_tokens"] = o.maxTokens
	}

	headers := map[string]string{}
	if o.apiKey != "" {
		headers["Authorization"] = "Bearer " + o.apiKey
	}

	resp, err := o.doRequest(ctx, http.MethodPost, "/v1/chat/completions", payload, headers)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return core.Message{}, fmt.Errorf("%w: chat completion: %w", core.ErrUpstreamTimeout, err)
		}
		return core.Message{}, fmt.Errorf("%w: chat completion: %w", core.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	return parseChatResponse(resp)
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toWireMessages(messages []core.Message) []wireMessage {
	out := make([]wireMessage, len(messages))
	for i, msg := range messages {
		out[i] = wireMessage{Role: msg.Role, Content: msg.Content}
	}
	return out
}

func parseChatResponse(resp *http.Response) (core.Message, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Message{}, fmt.Errorf("%w: read body: %w", core.ErrUpstreamFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		return core.Message{}, fmt.Errorf("%w: http %d: %s", core.ErrUpstreamFailure, resp.StatusCode, string(data))
	}

	var result struct {
		Choices []struct {
			Message wireMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return core.Message{}, fmt.Errorf("%w: decode: %w", core.ErrUpstreamFailure, err)
	}
	if len(result.Choices) == 0 {
		return core.Message{}, fmt.Errorf("%w: empty choices: %s", core.ErrUpstreamFailure, string(data))
	}

	choice := result.Choices[0].Message
	return core.Message{Role: choice.Role, Content: choice.Content}, nil
}
