package conversation

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type fakeChatCompleter struct {
	resp   openai.ChatCompletionResponse
	err    error
	gotReq openai.ChatCompletionRequest
}

func (f *fakeChatCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.gotReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return f.resp, nil
}

func TestOpenAIClientMapsRequestAndResponse(t *testing.T) {
	completer := &fakeChatCompleter{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: "  ¡Hola!  "},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17},
	}}
	client := &OpenAILLMClient{client: completer, modelID: "gpt-4o-mini"}

	resp, err := client.Complete(context.Background(), LLMRequest{
		System: []string{"instrucciones"},
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "Hola"},
		},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "¡Hola!" {
		t.Fatalf("expected trimmed text, got %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
	if resp.StopReason != string(openai.FinishReasonStop) {
		t.Fatalf("unexpected stop reason %q", resp.StopReason)
	}

	if completer.gotReq.Model != "gpt-4o-mini" {
		t.Fatalf("expected default model, got %q", completer.gotReq.Model)
	}
	if len(completer.gotReq.Messages) != 2 {
		t.Fatalf("expected system plus user message, got %d", len(completer.gotReq.Messages))
	}
	if completer.gotReq.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("expected leading system message, got %q", completer.gotReq.Messages[0].Role)
	}
}

func TestOpenAIClientNoChoices(t *testing.T) {
	client := &OpenAILLMClient{client: &fakeChatCompleter{}, modelID: "gpt-4o-mini"}

	if _, err := client.Complete(context.Background(), LLMRequest{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenAIClientTransportError(t *testing.T) {
	upstream := errors.New("502 bad gateway")
	client := &OpenAILLMClient{client: &fakeChatCompleter{err: upstream}, modelID: "gpt-4o-mini"}

	if _, err := client.Complete(context.Background(), LLMRequest{}); !errors.Is(err, upstream) {
		t.Fatalf("expected wrapped upstream error, got %v", err)
	}
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	if _, err := NewOpenAILLMClient("", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
