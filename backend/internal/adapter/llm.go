package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "reqgraph/backend/pkg/errors"
	"reqgraph/backend/pkg/logger"
)

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMAdapter handles communication with the LLM via LiteLLM
type LLMAdapter struct {
	client         *openai.Client
	model          string
	embeddingModel string
	maxRetries     int
	retryDelay     time.Duration
	logger         *zap.Logger
}

// EmbeddingModel returns the embedding model name. Cached vectors are keyed
// by it.
func (a *LLMAdapter) EmbeddingModel() string {
	return a.embeddingModel
}

// NewLLMAdapter creates a new LLM adapter
func NewLLMAdapter(baseURL, apiKey, modelID, embeddingModel string) *LLMAdapter {
	// For LiteLLM, we can use a dummy API key if not provided
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"

	return &LLMAdapter{
		client:         openai.NewClientWithConfig(config),
		model:          modelID,
		embeddingModel: embeddingModel,
		maxRetries:     3,
		retryDelay:     time.Second,
		logger:         logger.Get(),
	}
}

// Complete implements Completer with a single user message.
func (a *LLMAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	return a.Generate(ctx, "", prompt)
}

// Generate sends a system and user message to the LLM and returns the text
// of the first choice.
func (a *LLMAdapter) Generate(ctx context.Context, systemPrompt, userMsg string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMsg,
	})

	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: 0,
	}

	var resp openai.ChatCompletionResponse
	err := a.retry(ctx, a.model, "completion", func() error {
		var err error
		resp, err = a.client.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", apperrors.ErrLLMNoResponse
	}

	a.logger.Debug("LLM response generated",
		zap.String("model", a.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// Embed implements Embedder.
func (a *LLMAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder. Vectors come back in input order.
func (a *LLMAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(a.embeddingModel),
	}

	var resp openai.EmbeddingResponse
	err := a.retry(ctx, a.embeddingModel, "embedding", func() error {
		var err error
		resp, err = a.client.CreateEmbeddings(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.NewLLMFailed(a.embeddingModel, 1,
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, apperrors.NewLLMFailed(a.embeddingModel, 1, fmt.Errorf("embedding index %d out of range", d.Index))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// retry runs call up to maxRetries times with a linearly growing pause.
func (a *LLMAdapter) retry(ctx context.Context, model, kind string, call func() error) error {
	var err error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * a.retryDelay
			a.logger.Warn("Retrying LLM request",
				zap.String("kind", kind),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return apperrors.NewContextCancelled("llm "+kind, ctx.Err())
			case <-time.After(backoff):
			}
		}

		err = call()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return apperrors.NewContextCancelled("llm "+kind, ctx.Err())
		}

		errMsg := err.Error()
		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.String("kind", kind),
			zap.Int("attempt", attempt+1),
			zap.String("model", model),
		)

		// Check if it's a JSON parsing error (likely server returned non-JSON error)
		if strings.Contains(errMsg, "invalid character") {
			a.logger.Warn("LLM service returned non-JSON error response - this may be a transient server issue",
				zap.String("error", errMsg),
			)
		}
	}
	return apperrors.NewLLMFailed(model, a.maxRetries, err)
}
