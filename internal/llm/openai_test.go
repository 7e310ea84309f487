package llm

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type fakeChatAPI struct {
	gotReq openai.ChatCompletionRequest
	resp   openai.ChatCompletionResponse
	err    error
}

func (f *fakeChatAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.gotReq = req
	return f.resp, f.err
}

type fakeEmbeddingAPI struct {
	resp openai.EmbeddingResponse
	err  error
}

func (f *fakeEmbeddingAPI) CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	return f.resp, f.err
}

func TestOpenAIClientComplete(t *testing.T) {
	api := &fakeChatAPI{
		resp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Content: "  hello there  "},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
		},
	}
	client := NewOpenAIClient(api, "gpt-4o-mini")

	resp, err := client.Complete(context.Background(), Request{
		System:   []string{"policy"},
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != "hello there" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if len(api.gotReq.Messages) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(api.gotReq.Messages))
	}
	if api.gotReq.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("expected leading system message, got %s", api.gotReq.Messages[0].Role)
	}
	if api.gotReq.Model != "gpt-4o-mini" {
		t.Fatalf("expected default model, got %s", api.gotReq.Model)
	}
}

func TestOpenAIClientCompleteEmptyRequest(t *testing.T) {
	client := NewOpenAIClient(&fakeChatAPI{}, "")
	if _, err := client.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

func TestOpenAIClientCompleteError(t *testing.T) {
	api := &fakeChatAPI{err: errors.New("rate limited")}
	client := NewOpenAIClient(api, "")
	_, err := client.Complete(context.Background(), Request{
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestOpenAIEmbedder(t *testing.T) {
	api := &fakeEmbeddingAPI{
		resp: openai.EmbeddingResponse{
			Data: []openai.Embedding{
				{Embedding: []float32{0.1, 0.2}},
				{Embedding: []float32{0.3, 0.4}},
			},
		},
	}
	embedder := NewOpenAIEmbedder(api, "")

	vectors, err := embedder.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 2 || vectors[1][0] != 0.3 {
		t.Fatalf("unexpected vectors: %#v", vectors)
	}
}

func TestOpenAIEmbedderSizeMismatch(t *testing.T) {
	api := &fakeEmbeddingAPI{
		resp: openai.EmbeddingResponse{Data: []openai.Embedding{{Embedding: []float32{1}}}},
	}
	embedder := NewOpenAIEmbedder(api, "")
	if _, err := embedder.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected size mismatch error")
	}
}
