// Package embedding attaches embeddings to extracted content items using a
// pluggable EmbeddingService.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pdfrag/internal/domain"
)

// DefaultDimension matches multimodalembedding@001.
const DefaultDimension = 1408

// ProgressFunc is called once per processed item.
type ProgressFunc func(done, total int)

type PipelineConfig struct {
	Dimension int
	// Workers bounds concurrent requests. 1 embeds sequentially.
	Workers int
	// RequestsPerSecond limits calls to the service; 0 disables the limit.
	RequestsPerSecond float64
	Progress          ProgressFunc
}

// Result holds the embedded items in input order plus the items that were
// dropped.
type Result struct {
	Items    []domain.ContentItem
	Failures []domain.ItemFailure
}

type Pipeline struct {
	svc     domain.EmbeddingService
	cfg     PipelineConfig
	limiter *rate.Limiter
	log     domain.Logger
}

func NewPipeline(svc domain.EmbeddingService, cfg PipelineConfig, log domain.Logger) *Pipeline {
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	p := &Pipeline{svc: svc, cfg: cfg, log: log}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Workers
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return p
}

func (p *Pipeline) Dimension() int { return p.cfg.Dimension }

// ImageContext is the text sent alongside an image so the model can place
// it in the document.
func ImageContext(page int) string {
	return fmt.Sprintf("Image from page %d of the document", page+1)
}

// Embed returns copies of items with embeddings attached. Items that fail
// are logged and left out; an unavailable service aborts the whole call.
func (p *Pipeline) Embed(ctx context.Context, items []domain.ContentItem) (Result, error) {
	slots := make([]*domain.ContentItem, len(items))
	failures := make([]*domain.ItemFailure, len(items))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i := range items {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := p.embedItem(gctx, items[i])
			if err == nil && len(vec) != p.cfg.Dimension {
				err = fmt.Errorf("got %d dimensions, want %d", len(vec), p.cfg.Dimension)
			}
			if err != nil {
				if errors.Is(err, domain.ErrServiceUnavailable) {
					return fmt.Errorf("embed %s: %w", items[i].ID, err)
				}
				p.log.Warn("embedding failed", "id", items[i].ID, "err", err)
				failures[i] = &domain.ItemFailure{ID: items[i].ID, Stage: "embed", Err: err}
			} else {
				out := items[i].Clone()
				out.Embedding = vec
				slots[i] = &out
			}
			if p.cfg.Progress != nil {
				mu.Lock()
				done++
				p.cfg.Progress(done, len(items))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var res Result
	for i := range items {
		if slots[i] != nil {
			res.Items = append(res.Items, *slots[i])
		}
		if failures[i] != nil {
			res.Failures = append(res.Failures, *failures[i])
		}
	}
	p.log.Info(fmt.Sprintf("embedded %d of %d items", len(res.Items), len(items)), "service", p.svc.Name())
	return res, nil
}

// EmbedQuery embeds a question. Any error is returned.
func (p *Pipeline) EmbedQuery(ctx context.Context, question string) ([]float64, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	vec, err := p.svc.EmbedText(ctx, question, p.cfg.Dimension)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) != p.cfg.Dimension {
		return nil, fmt.Errorf("embed query: got %d dimensions, want %d", len(vec), p.cfg.Dimension)
	}
	return vec, nil
}

func (p *Pipeline) embedItem(ctx context.Context, it domain.ContentItem) ([]float64, error) {
	switch c := it.Content.(type) {
	case domain.ImageContent:
		data := c.Data
		if !c.Materialized() {
			var err error
			if data, err = os.ReadFile(it.Path); err != nil {
				return nil, fmt.Errorf("read image: %w", err)
			}
		}
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		return p.svc.EmbedImage(ctx, data, ImageContext(it.Page), p.cfg.Dimension)
	default:
		text := it.Text()
		if text == "" {
			return nil, errors.New("empty text")
		}
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		return p.svc.EmbedText(ctx, text, p.cfg.Dimension)
	}
}

func (p *Pipeline) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
