// Package anthropic generates answers with Claude models through the
// Messages API. Images are sent as base64 image blocks.
package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"pdfrag/internal/domain"
)

const (
	DefaultModel     = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens = 1024
)

type Config struct {
	APIKeyEnv string
	Model     string
	MaxTokens int
	// BaseURL overrides the API endpoint.
	BaseURL string
}

type Generator struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

var _ domain.Generator = (*Generator)(nil)

func NewGenerator(cfg Config) (*Generator, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return &Generator{
		client:    anthropic.NewClient(key, opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (g *Generator) Name() string { return "anthropic:" + g.model }

func (g *Generator) Generate(ctx context.Context, msg domain.Message) (string, error) {
	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(g.model),
		Messages:  []anthropic.Message{toMessage(msg)},
		MaxTokens: g.maxTokens,
	}
	resp, err := g.client.CreateMessages(ctx, req)
	if err != nil {
		return "", classify(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty answer (stop reason %s)", resp.StopReason)
	}
	return sb.String(), nil
}

func toMessage(msg domain.Message) anthropic.Message {
	out := anthropic.Message{Role: anthropic.RoleUser}
	// images first, then the prompt that refers to them
	for _, p := range msg.Parts {
		if !p.IsImage() {
			continue
		}
		mime := p.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		out.Content = append(out.Content, anthropic.NewImageMessageContent(
			anthropic.NewMessageContentSource(
				anthropic.MessagesContentSourceTypeBase64,
				mime,
				base64.StdEncoding.EncodeToString(p.Image),
			),
		))
	}
	for _, p := range msg.Parts {
		if !p.IsImage() {
			out.Content = append(out.Content, anthropic.NewTextMessageContent(p.Text))
		}
	}
	return out
}

func classify(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsAuthenticationErr() || apiErr.IsPermissionErr() || apiErr.IsNotFoundErr() {
			return fmt.Errorf("anthropic: %w: %w", err, domain.ErrServiceUnavailable)
		}
	}
	return fmt.Errorf("anthropic: %w", err)
}
