// Package openai generates answers with any OpenAI-compatible chat
// completion endpoint. Images are sent as data URLs.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"pdfrag/internal/domain"
)

const DefaultModel = "gpt-4o-mini"

type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	HTTP      *http.Client
}

type Generator struct {
	client *openai.Client
	model  string
}

var _ domain.Generator = (*Generator)(nil)

func NewGenerator(cfg Config) (*Generator, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	config := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.HTTP != nil {
		config.HTTPClient = cfg.HTTP
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Generator{client: openai.NewClientWithConfig(config), model: cfg.Model}, nil
}

func (g *Generator) Name() string { return "openai:" + g.model }

func (g *Generator) Generate(ctx context.Context, msg domain.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: []openai.ChatCompletionMessage{toMessage(msg)},
	}
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from OpenAI")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty answer (finish reason %s)", resp.Choices[0].FinishReason)
	}
	return content, nil
}

func toMessage(msg domain.Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	for _, p := range msg.Parts {
		if !p.IsImage() {
			out.MultiContent = append(out.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: p.Text,
			})
			continue
		}
		mime := p.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		out.MultiContent = append(out.MultiContent, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(p.Image),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return out
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("openai: %w: %w", err, domain.ErrServiceUnavailable)
		}
	}
	return fmt.Errorf("openai: %w", err)
}
