// Package service wires extraction, embedding, persistence, retrieval and
// answer assembly into the two operations the CLI and TUI need.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pdfrag/internal/answer"
	"pdfrag/internal/chunker"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/extractor"
	"pdfrag/internal/indexstore"
	"pdfrag/internal/retriever"
	"pdfrag/internal/summarizer"
)

type Deps struct {
	Extractor  *extractor.Extractor
	Embedder   *embedding.Pipeline
	Store      indexstore.Store
	Assembler  *answer.Assembler
	Summarizer domain.Summarizer
}

type Config struct {
	TopK             int
	SummarySentences int
}

// IndexReport describes one IndexDocument run.
type IndexReport struct {
	Source     string
	SessionID  string
	Location   string
	TextItems  int
	ImageItems int
	Embedded   int
	Failures   []domain.ItemFailure
	Oversized  []string
	Summary    string
}

// IndexInfo describes the index currently loaded for querying.
type IndexInfo struct {
	Source    string
	SessionID string
	Items     int
	Summary   string
}

type Service struct {
	deps Deps
	cfg  Config
	log  domain.Logger

	mu     sync.Mutex
	flat   *retriever.Flat
	loaded indexstore.Index
}

func New(deps Deps, cfg Config, log domain.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = retriever.DefaultTopK
	}
	if cfg.SummarySentences <= 0 {
		cfg.SummarySentences = summarizer.DefaultMaxSentences
	}
	return &Service{deps: deps, cfg: cfg, log: log}
}

// IndexDocument extracts, embeds and persists pdfPath, replacing any
// previous index. The new index also becomes the one Ask queries.
func (s *Service) IndexDocument(ctx context.Context, pdfPath string) (IndexReport, error) {
	report := IndexReport{Source: pdfPath, Location: s.deps.Store.Location()}

	extracted, err := s.deps.Extractor.Extract(ctx, pdfPath)
	if err != nil {
		return report, err
	}
	report.TextItems, report.ImageItems = extracted.Counts()
	report.Failures = append(report.Failures, extracted.Failures...)
	if ids := chunker.Oversized(extracted.Items, chunker.MaxChunkChars); len(ids) > 0 {
		s.log.Warn("chunks above ceiling", "count", len(ids), "ids", ids)
		report.Oversized = ids
	}
	if len(extracted.Items) == 0 {
		return report, fmt.Errorf("no content extracted from %s", pdfPath)
	}

	embedded, err := s.deps.Embedder.Embed(ctx, extracted.Items)
	if err != nil {
		return report, err
	}
	report.Embedded = len(embedded.Items)
	report.Failures = append(report.Failures, embedded.Failures...)
	if len(embedded.Items) == 0 {
		return report, fmt.Errorf("no items could be embedded from %s", pdfPath)
	}

	idx := indexstore.New(pdfPath, s.deps.Embedder.Dimension(), embedded.Items)
	if err := s.deps.Store.Save(ctx, idx); err != nil {
		return report, fmt.Errorf("save index: %w", err)
	}
	report.SessionID = idx.SessionID
	s.log.Info("index saved", "path", report.Location, "items", len(idx.Items), "session", idx.SessionID)

	if err := s.use(idx); err != nil {
		return report, err
	}
	report.Summary = s.summary(idx.Items)
	return report, nil
}

// Load makes the persisted index queryable, reading image bytes back from
// their files. It is a no-op when an index is already loaded.
func (s *Service) Load(ctx context.Context) (IndexInfo, error) {
	s.mu.Lock()
	loaded := s.flat != nil
	s.mu.Unlock()
	if !loaded {
		idx, err := s.deps.Store.Load(ctx)
		if err != nil {
			return IndexInfo{}, err
		}
		if len(idx.Items) == 0 {
			return IndexInfo{}, fmt.Errorf("%w: %s holds no items", domain.ErrNoIndex, s.deps.Store.Location())
		}
		report := indexstore.Materialize(idx.Items, s.log)
		s.log.Info("index loaded", "path", s.deps.Store.Location(), "items", len(idx.Items),
			"materialized", report.Loaded, "missing", len(report.Failures))
		if err := s.use(idx); err != nil {
			return IndexInfo{}, err
		}
	}

	s.mu.Lock()
	idx := s.loaded
	s.mu.Unlock()
	return IndexInfo{
		Source:    idx.Source,
		SessionID: idx.SessionID,
		Items:     len(idx.Items),
		Summary:   s.summary(idx.Items),
	}, nil
}

// Ask answers question from the loaded index, loading it first if needed.
// Generation problems never surface as errors; see answer.Answer.Mode.
func (s *Service) Ask(ctx context.Context, question string) (answer.Answer, error) {
	if _, err := s.Load(ctx); err != nil {
		if errors.Is(err, domain.ErrNoIndex) {
			return answer.Answer{}, err
		}
		return answer.Answer{}, fmt.Errorf("load index: %w", err)
	}
	vec, err := s.deps.Embedder.EmbedQuery(ctx, question)
	if err != nil {
		return answer.Answer{}, err
	}

	s.mu.Lock()
	flat := s.flat
	s.mu.Unlock()
	matches := flat.Search(vec, s.cfg.TopK)
	s.log.Debug("retrieved matches", "question", question, "count", len(matches))
	return s.deps.Assembler.Answer(ctx, question, matches), nil
}

func (s *Service) use(idx indexstore.Index) error {
	dim := idx.Dimension
	if dim == 0 {
		dim = s.deps.Embedder.Dimension()
	}
	flat := retriever.NewFlat(dim)
	if err := flat.Reset(idx.Items); err != nil {
		return fmt.Errorf("index %s: %w", s.deps.Store.Location(), err)
	}
	s.mu.Lock()
	s.flat, s.loaded = flat, idx
	s.mu.Unlock()
	return nil
}

func (s *Service) summary(items []domain.ContentItem) string {
	if s.deps.Summarizer == nil {
		return ""
	}
	out, err := summarizer.SummarizeItems(s.deps.Summarizer, items, s.cfg.SummarySentences)
	if err != nil {
		s.log.Warn("summary failed", "err", err)
		return ""
	}
	return out
}
