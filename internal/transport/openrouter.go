package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// OpenRouter talks to an OpenRouter-compatible chat completions API
type OpenRouter struct {
	client *openai.Client
	log    *logrus.Entry
}

// NewOpenRouter creates a client for the given endpoint. baseURL may
// point at any OpenAI-compatible chat completions service.
func NewOpenRouter(apiKey, baseURL string, timeout time.Duration) *OpenRouter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenRouter{
		client: openai.NewClientWithConfig(cfg),
		log:    logrus.WithField("component", "transport"),
	}
}

func toOpenAI(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
}

// Complete issues a single blocking scoring call
func (o *OpenRouter) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	resp, err := o.client.CreateChatCompletion(ctx, toOpenAI(req))
	if err != nil {
		return nil, fmt.Errorf("completion call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("backend returned no choices")
	}

	choice := resp.Choices[0]
	return &Response{
		Content:      choice.Message.Content,
		Reasoning:    choice.Message.ReasoningContent,
		FinishReason: string(choice.FinishReason),
		Metadata: map[string]any{
			"model":             resp.Model,
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"latency_ms":        time.Since(start).Milliseconds(),
			"generation_id":     resp.ID,
		},
	}, nil
}

// Stream issues a streaming scoring call, forwarding deltas in
// arrival order. The assembled response is returned once the stream
// signals end-of-stream.
func (o *OpenRouter) Stream(ctx context.Context, req Request, onDelta func(Delta)) (*Response, error) {
	start := time.Now()

	oaReq := toOpenAI(req)
	oaReq.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, oaReq)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	defer stream.Close()

	var content, reasoning, finishReason, model, generationID string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stream read failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		model = chunk.Model
		generationID = chunk.ID
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}

		d := Delta{
			Content:   choice.Delta.Content,
			Reasoning: choice.Delta.ReasoningContent,
		}
		if d.Content == "" && d.Reasoning == "" {
			continue
		}
		content += d.Content
		reasoning += d.Reasoning
		if onDelta != nil {
			onDelta(d)
		}
	}

	return &Response{
		Content:      content,
		Reasoning:    reasoning,
		FinishReason: finishReason,
		Metadata: map[string]any{
			"model":         model,
			"latency_ms":    time.Since(start).Milliseconds(),
			"generation_id": generationID,
		},
	}, nil
}
