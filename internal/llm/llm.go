// Package llm adapts hosted chat models to chat.Completer.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"pdfchat/internal/chat"
)

// Temperature is used by every provider.
const Temperature = 0.7

// ErrEmptyReply is returned when a provider answers without any text.
var ErrEmptyReply = errors.New("malformed response: no reply text")

// Providers lists the accepted provider names.
var Providers = []string{"gemini", "openai", "anthropic", "huggingface"}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case "gemini", "":
		return "gemini-2.5-pro"
	case "openai":
		return openai.GPT4o
	case "anthropic":
		return "claude-sonnet-4-5"
	case "huggingface":
		return "mistralai/Mistral-7B-Instruct-v0.3"
	}
	return ""
}

// NewProvider creates the completer for providerName. An empty name selects
// Gemini.
func NewProvider(providerName, apiKey, model string) (chat.Completer, error) {
	providerName = strings.ToLower(providerName)
	if model == "" {
		model = DefaultModel(providerName)
	}
	switch providerName {
	case "gemini", "":
		return NewGeminiProvider(context.Background(), apiKey, model, "")
	case "openai":
		return &OpenAIProvider{client: openai.NewClient(apiKey), model: model}, nil
	case "huggingface":
		return &HuggingFaceProvider{apiKey: apiKey, model: model}, nil
	case "anthropic":
		return &AnthropicProvider{apiKey: apiKey, model: model}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", providerName)
	}
}

// ==========================================
// Gemini Provider
// ==========================================
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider builds a Gemini API client. baseURL is empty in
// production and points at a fake server in tests.
func NewGeminiProvider(ctx context.Context, apiKey, model, baseURL string) (*GeminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Complete(ctx context.Context, system string, turns []chat.Turn) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](Temperature),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, geminiContents(turns), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini error: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyReply)
	}
	return text, nil
}

func geminiContents(turns []chat.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		var role genai.Role = genai.RoleUser
		if t.Role == chat.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(t.Text, role))
	}
	return out
}

// ==========================================
// OpenAI Provider
// ==========================================
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func (p *OpenAIProvider) Complete(ctx context.Context, system string, turns []chat.Turn) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    openAIMessages(system, turns),
		Temperature: Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyReply)
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIMessages(system string, turns []chat.Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == chat.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	return msgs
}

// ==========================================
// HuggingFace Provider (v1/chat/completions)
// ==========================================
type HuggingFaceProvider struct {
	apiKey  string
	model   string
	baseURL string // defaults to the HF router
}

func (p *HuggingFaceProvider) Complete(ctx context.Context, system string, turns []chat.Turn) (string, error) {
	var msgs []map[string]string
	for _, m := range openAIMessages(system, turns) {
		msgs = append(msgs, map[string]string{"role": m.Role, "content": m.Content})
	}
	reqBody, err := json.Marshal(map[string]interface{}{
		"model":       p.model,
		"messages":    msgs,
		"max_tokens":  2048,
		"temperature": Temperature,
		"stream":      false,
	})
	if err != nil {
		return "", fmt.Errorf("huggingface encode error: %w", err)
	}

	base := p.baseURL
	if base == "" {
		base = "https://router.huggingface.co/v1"
	}
	req, err := http.NewRequestWithContext(ctx, "POST", base+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("huggingface req error: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("huggingface req error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("huggingface api error: %d - %s", resp.StatusCode, string(bodyBytes))
	}

	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("huggingface json error: %w", err)
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("huggingface: %w", ErrEmptyReply)
	}
	return chatResp.Choices[0].Message.Content, nil
}

// ==========================================
// Anthropic Provider
// ==========================================
type AnthropicProvider struct {
	apiKey  string
	model   string
	baseURL string // defaults to https://api.anthropic.com
}

func (p *AnthropicProvider) Complete(ctx context.Context, system string, turns []chat.Turn) (string, error) {
	msgs := make([]map[string]string, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == chat.RoleAssistant {
			role = "assistant"
		}
		msgs = append(msgs, map[string]string{"role": role, "content": t.Text})
	}
	body := map[string]interface{}{
		"model":       p.model,
		"max_tokens":  2048,
		"temperature": Temperature,
		"messages":    msgs,
	}
	if system != "" {
		body["system"] = system
	}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("anthropic encode error: %w", err)
	}

	base := p.baseURL
	if base == "" {
		base = "https://api.anthropic.com"
	}
	req, err := http.NewRequestWithContext(ctx, "POST", base+"/v1/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("anthropic req error: %w", err)
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic req error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic api error: %d - %s", resp.StatusCode, string(bodyBytes))
	}

	var anthResp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&anthResp); err != nil {
		return "", fmt.Errorf("anthropic json decode error: %w", err)
	}

	// Some models return several content blocks.
	var fullText strings.Builder
	for _, block := range anthResp.Content {
		if block.Type == "" || block.Type == "text" {
			fullText.WriteString(block.Text)
		}
	}
	if fullText.Len() == 0 {
		return "", fmt.Errorf("anthropic: %w", ErrEmptyReply)
	}
	return fullText.String(), nil
}
