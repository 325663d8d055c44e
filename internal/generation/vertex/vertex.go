// Package vertex generates answers with Gemini models on Vertex AI.
package vertex

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"pdfrag/internal/domain"
	"pdfrag/internal/vertexai"
)

const DefaultModel = "gemini-1.5-flash"

type Generator struct {
	client *vertexai.Client
	model  string
}

var _ domain.Generator = (*Generator)(nil)

func NewGenerator(client *vertexai.Client, model string) *Generator {
	if model == "" {
		model = DefaultModel
	}
	return &Generator{client: client, model: model}
}

func (g *Generator) Name() string { return "vertex:" + g.model }

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *Generator) Generate(ctx context.Context, msg domain.Message) (string, error) {
	req := generateRequest{Contents: []content{toContent(msg)}}

	var out generateResponse
	if err := g.client.Call(ctx, g.model, "generateContent", req, &out); err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if len(out.Candidates) == 0 {
		if out.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("generate: prompt blocked: %s", out.PromptFeedback.BlockReason)
		}
		return "", errors.New("generate: no candidates returned")
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("generate: empty answer (finish reason %s)", out.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}

func toContent(msg domain.Message) content {
	role := msg.Role
	if role == "" {
		role = domain.RoleUser
	}
	c := content{Role: role}
	for _, p := range msg.Parts {
		if p.IsImage() {
			mime := p.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			c.Parts = append(c.Parts, part{InlineData: &inlineData{
				MimeType: mime,
				Data:     base64.StdEncoding.EncodeToString(p.Image),
			}})
			continue
		}
		c.Parts = append(c.Parts, part{Text: p.Text})
	}
	return c
}
