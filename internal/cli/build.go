package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pdfrag/internal/answer"
	"pdfrag/internal/auth"
	"pdfrag/internal/chunker"
	"pdfrag/internal/config"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/embedding/hashing"
	embopenai "pdfrag/internal/embedding/openai"
	embvertex "pdfrag/internal/embedding/vertex"
	"pdfrag/internal/extractor"
	genanthropic "pdfrag/internal/generation/anthropic"
	genopenai "pdfrag/internal/generation/openai"
	genvertex "pdfrag/internal/generation/vertex"
	"pdfrag/internal/indexstore"
	"pdfrag/internal/pdfdoc"
	"pdfrag/internal/service"
	"pdfrag/internal/summarizer"
	"pdfrag/internal/vertexai"
)

// Build assembles a Service from cfg. Vertex credentials are only resolved
// when a Vertex provider is selected.
func Build(ctx context.Context, cfg *config.AppConfig, log domain.Logger) (*service.Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	var vc *vertexai.Client
	vertexClient := func(timeoutSecs int) (*vertexai.Client, error) {
		if vc != nil {
			return vc, nil
		}
		sess, err := auth.Authenticate(ctx, auth.Config{KeyPath: cfg.Project.KeyPath, ProjectID: cfg.Project.ID})
		if err != nil {
			return nil, err
		}
		log.Info("authenticated with google cloud", "source", sess.Source, "project", sess.ProjectID)
		vc, err = vertexai.New(sess.HTTPClient, vertexai.Config{
			ProjectID: sess.ProjectID,
			Location:  cfg.Project.Location,
			Timeout:   time.Duration(timeoutSecs) * time.Second,
		})
		return vc, err
	}

	// Assemble components
	var emb domain.EmbeddingService
	switch cfg.Embedder.Provider {
	case "hashing":
		emb = hashing.NewEmbedder()
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	case "vertex":
		client, err := vertexClient(cfg.Embedder.TimeoutSecs)
		if err != nil {
			return nil, fmt.Errorf("vertex embedder init failed: %w", err)
		}
		emb = embvertex.NewEmbedder(client, cfg.Embedder.Model)
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Provider)
	}

	var gen domain.Generator
	switch cfg.Generator.Provider {
	case "vertex":
		client, err := vertexClient(cfg.Generator.TimeoutSecs)
		if err != nil {
			return nil, fmt.Errorf("vertex generator init failed: %w", err)
		}
		gen = genvertex.NewGenerator(client, cfg.Generator.Model)
	case "openai":
		if cfg.Generator.OpenAI == nil {
			return nil, fmt.Errorf("openai generator config missing")
		}
		g, err := genopenai.NewGenerator(genopenai.Config{
			BaseURL:   cfg.Generator.OpenAI.BaseURL,
			APIKeyEnv: cfg.Generator.OpenAI.APIKeyEnv,
			Model:     cfg.Generator.OpenAI.Model,
			HTTP:      &http.Client{Timeout: time.Duration(cfg.Generator.TimeoutSecs) * time.Second},
		})
		if err != nil {
			return nil, fmt.Errorf("openai generator init failed: %w", err)
		}
		gen = g
	case "anthropic":
		if cfg.Generator.Anthropic == nil {
			return nil, fmt.Errorf("anthropic generator config missing")
		}
		g, err := genanthropic.NewGenerator(genanthropic.Config{
			APIKeyEnv: cfg.Generator.Anthropic.APIKeyEnv,
			Model:     cfg.Generator.Anthropic.Model,
			MaxTokens: cfg.Generator.Anthropic.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic generator init failed: %w", err)
		}
		gen = g
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Generator.Provider)
	}

	st, err := indexstore.Open(cfg.Index.Backend, cfg.Paths.IndexPath)
	if err != nil {
		return nil, err
	}

	ex := extractor.New(pdfdoc.Opener{}, chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap), extractor.Config{
		TextDir:       cfg.Paths.TextDir,
		ImageDir:      cfg.Paths.ImageDir,
		MinChunkChars: cfg.Chunker.MinChunkChars,
	}, log)

	pipeline := embedding.NewPipeline(emb, embedding.PipelineConfig{
		Dimension:         cfg.Embedder.Dimension,
		Workers:           cfg.Embedder.Workers,
		RequestsPerSecond: cfg.Embedder.RequestsPerSecond,
		Progress: func(done, total int) {
			log.Debug("embedding progress", "done", done, "total", total)
		},
	}, log)

	asm := answer.New(gen, answer.Config{ContextPreviewChars: cfg.Retrieval.ContextPreviewChars}, log)

	log.Debug("components ready", "embedder", emb.Name(), "generator", gen.Name(), "index", st.Location())
	return service.New(service.Deps{
		Extractor:  ex,
		Embedder:   pipeline,
		Store:      st,
		Assembler:  asm,
		Summarizer: summarizer.NewFrequencySummarizer(),
	}, service.Config{
		TopK:             cfg.Retrieval.TopK,
		SummarySentences: cfg.Retrieval.SummarySentences,
	}, log), nil
}
