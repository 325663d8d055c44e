package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/answer"
	"pdfrag/internal/chunker"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/embedding/hashing"
	"pdfrag/internal/extractor"
	"pdfrag/internal/indexstore"
	"pdfrag/internal/logging"
	"pdfrag/internal/summarizer"
)

type pageDoc struct {
	texts  []string
	images map[int][]extractor.Image
}

func (d *pageDoc) PageCount() int { return len(d.texts) }
func (d *pageDoc) PageText(_ context.Context, p int) (string, error) {
	return d.texts[p], nil
}
func (d *pageDoc) PageImages(_ context.Context, p int) ([]extractor.Image, error) {
	return d.images[p], nil
}
func (d *pageDoc) Close() error { return nil }

// flakyService fails every text containing "POISON".
type flakyService struct{ *hashing.Embedder }

func (f flakyService) EmbedText(ctx context.Context, text string, dim int) ([]float64, error) {
	if strings.Contains(text, "POISON") {
		return nil, errors.New("rejected by model")
	}
	return f.Embedder.EmbedText(ctx, text, dim)
}

type echoGenerator struct{ last domain.Message }

func (g *echoGenerator) Name() string { return "echo" }
func (g *echoGenerator) Generate(_ context.Context, msg domain.Message) (string, error) {
	g.last = msg
	return "answer based on context", nil
}

type fixture struct {
	svc   *Service
	store indexstore.Store
	gen   *echoGenerator
	dir   string
}

func newFixture(t *testing.T, doc *pageDoc) fixture {
	t.Helper()
	dir := t.TempDir()
	opener := extractor.OpenerFunc(func(context.Context, string) (extractor.Document, error) { return doc, nil })
	store := indexstore.NewJSONStore(filepath.Join(dir, "index", "rag_index.json"))
	gen := &echoGenerator{}
	return fixture{
		svc:   newService(t, dir, opener, store, gen),
		store: store,
		gen:   gen,
		dir:   dir,
	}
}

func newService(t *testing.T, dir string, opener extractor.Opener, store indexstore.Store, gen domain.Generator) *Service {
	t.Helper()
	log := logging.Discard()
	return New(Deps{
		Extractor: extractor.New(opener, chunker.New(800, 100), extractor.Config{
			TextDir:  filepath.Join(dir, "text"),
			ImageDir: filepath.Join(dir, "images"),
		}, log),
		Embedder:   embedding.NewPipeline(flakyService{hashing.NewEmbedder()}, embedding.PipelineConfig{Dimension: 256}, log),
		Store:      store,
		Assembler:  answer.New(gen, answer.Config{}, log),
		Summarizer: summarizer.NewFrequencySummarizer(),
	}, Config{TopK: 3}, log)
}

func pngImage(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func paperDoc(t *testing.T) *pageDoc {
	return &pageDoc{
		texts: []string{
			"Rectified flow learns an ordinary differential equation that transports noise to data along straight paths.",
			"Reflow repeatedly straightens the learned trajectories so sampling needs very few steps.",
			"POISON paragraph that the embedding model refuses to handle at all.",
		},
		images: map[int][]extractor.Image{1: {{Data: pngImage(t), Format: "png"}}},
	}
}

func TestIndexThenAsk(t *testing.T) {
	f := newFixture(t, paperDoc(t))
	ctx := context.Background()

	report, err := f.svc.IndexDocument(ctx, "paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, 3, report.TextItems)
	assert.Equal(t, 1, report.ImageItems)
	assert.Equal(t, 3, report.Embedded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "text_2_0", report.Failures[0].ID)
	assert.NotEmpty(t, report.SessionID)
	assert.NotEmpty(t, report.Summary)
	assert.Empty(t, report.Oversized)

	got, err := f.svc.Ask(ctx, "How does rectified flow transport noise to data?")
	require.NoError(t, err)
	assert.Equal(t, answer.ModeMultimodal, got.Mode)
	require.NotEmpty(t, got.Matches)
	assert.Equal(t, "text_0_0", got.Matches[0].Item.ID)
	assert.Contains(t, got.TextContext, "[Content from page 1]")
}

func TestAsk_WithoutIndex(t *testing.T) {
	f := newFixture(t, paperDoc(t))
	_, err := f.svc.Ask(context.Background(), "anything?")
	assert.ErrorIs(t, err, domain.ErrNoIndex)
}

func TestAsk_EmptyIndexIsMissing(t *testing.T) {
	f := newFixture(t, paperDoc(t))
	require.NoError(t, f.store.Save(context.Background(), indexstore.New("empty.pdf", 256, nil)))

	_, err := f.svc.Ask(context.Background(), "anything?")
	assert.ErrorIs(t, err, domain.ErrNoIndex)
}

func TestFailedEmbeddingNeverReachesReloadedIndex(t *testing.T) {
	f := newFixture(t, paperDoc(t))
	ctx := context.Background()
	_, err := f.svc.IndexDocument(ctx, "paper.pdf")
	require.NoError(t, err)

	// a fresh process reading the same index
	fresh := newService(t, f.dir, extractor.OpenerFunc(nil), f.store, &echoGenerator{})
	info, err := fresh.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Items)
	assert.Equal(t, "paper.pdf", info.Source)

	got, err := fresh.Ask(ctx, "POISON paragraph refuses")
	require.NoError(t, err)
	for _, m := range got.Matches {
		assert.NotEqual(t, "text_2_0", m.Item.ID)
	}
}

func TestReloadWithDeletedImageStillAnswers(t *testing.T) {
	f := newFixture(t, paperDoc(t))
	ctx := context.Background()
	_, err := f.svc.IndexDocument(ctx, "paper.pdf")
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(f.dir, "images", "image_1_0.png")))

	gen := &echoGenerator{}
	fresh := newService(t, f.dir, extractor.OpenerFunc(nil), f.store, gen)
	got, err := fresh.Ask(ctx, "Image from page 2 figure")
	require.NoError(t, err)
	assert.Equal(t, answer.ModeMultimodal, got.Mode)
	for _, p := range gen.last.Parts {
		assert.False(t, p.IsImage())
	}
}

func TestIndexDocument_OpenFailure(t *testing.T) {
	dir := t.TempDir()
	opener := extractor.OpenerFunc(func(context.Context, string) (extractor.Document, error) {
		return nil, errors.New("corrupt")
	})
	svc := newService(t, dir, opener, indexstore.NewJSONStore(filepath.Join(dir, "i.json")), &echoGenerator{})

	_, err := svc.IndexDocument(context.Background(), "bad.pdf")
	assert.ErrorIs(t, err, domain.ErrOpenDocument)
}
