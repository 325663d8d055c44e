package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/answer"
	"pdfrag/internal/chunker"
	"pdfrag/internal/config"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/embedding/hashing"
	"pdfrag/internal/extractor"
	"pdfrag/internal/indexstore"
	"pdfrag/internal/logging"
	"pdfrag/internal/service"
	"pdfrag/internal/summarizer"
)

func resetFlags(t *testing.T) {
	t.Helper()
	cfgPath, pdfPath, query, keyPath, verbose = "", "", "", "", false
	t.Cleanup(func() {
		cfgPath, pdfPath, query, keyPath, verbose = "", "", "", "", false
		newService = Build
		rootCmd.SetArgs(nil)
	})
}

// writeConfig writes a config that needs no network: hashing embeddings and
// an OpenAI-compatible generator whose key comes from the test env.
func writeConfig(t *testing.T, backend string) (string, *config.AppConfig) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(dir, "static")
	cfg.Embedder.Provider = "hashing"
	cfg.Embedder.Dimension = 256
	cfg.Generator.Provider = "openai"
	cfg.Generator.Model = ""
	cfg.Index.Backend = backend
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.Save(path, cfg))
	loaded, err := config.Load(path)
	require.NoError(t, err)
	return path, loaded
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "pdfrag", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.Contains(t, rootCmd.Long, "--query")

	for _, name := range []string{"config", "pdf", "key", "verbose"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
	q := rootCmd.Flags().Lookup("query")
	require.NotNil(t, q)
	assert.Equal(t, "q", q.Shorthand)
}

func TestChatCommand_Registered(t *testing.T) {
	var found bool
	for _, c := range rootCmd.Commands() {
		if c.Name() == "chat" {
			found = true
		}
	}
	assert.True(t, found)
	assert.Equal(t, "chat", chatCmd.Use)
	assert.Contains(t, chatCmd.Long, "--pdf")
}

func TestRoot_NoFlagsPrintsHint(t *testing.T) {
	resetFlags(t)
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Please provide either a PDF file to process (--pdf) or a question to ask (--query).")
}

func TestRoot_QueryWithoutIndex(t *testing.T) {
	for _, backend := range []string{"json", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			resetFlags(t)
			path, cfg := writeConfig(t, backend)

			_, err := execute(t, "--config", path, "--query", "what is rectified flow?")
			require.Error(t, err)
			assert.Equal(t, fmt.Sprintf("no index found at %s; process a PDF first (--pdf)", cfg.Paths.IndexPath), err.Error())
		})
	}
}

func TestRoot_BadConfig(t *testing.T) {
	resetFlags(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder: [oops"), 0o644))

	_, err := execute(t, "--config", path, "--query", "x")
	assert.ErrorContains(t, err, "failed to load config")
}

func TestBuild_UnknownProvider(t *testing.T) {
	_, cfg := writeConfig(t, "json")
	cfg.Embedder.Provider = "word2vec"
	_, err := Build(context.Background(), cfg, logging.Discard())
	assert.ErrorContains(t, err, "unknown embedder provider")
}

func TestBuild_MissingGeneratorKey(t *testing.T) {
	_, cfg := writeConfig(t, "json")
	t.Setenv("OPENAI_API_KEY", "")
	_, err := Build(context.Background(), cfg, logging.Discard())
	assert.ErrorContains(t, err, "openai generator init failed")
}

type memDoc struct{ texts []string }

func (d memDoc) PageCount() int { return len(d.texts) }
func (d memDoc) PageText(_ context.Context, p int) (string, error) {
	return d.texts[p], nil
}
func (d memDoc) PageImages(context.Context, int) ([]extractor.Image, error) { return nil, nil }
func (d memDoc) Close() error                                             { return nil }

type cannedGenerator struct{}

func (cannedGenerator) Name() string { return "canned" }
func (cannedGenerator) Generate(context.Context, domain.Message) (string, error) {
	return "Straight paths make sampling cheap.", nil
}

// fakeBuild mirrors Build but swaps the PDF reader and generator.
func fakeBuild(doc memDoc) func(context.Context, *config.AppConfig, domain.Logger) (*service.Service, error) {
	return func(_ context.Context, cfg *config.AppConfig, log domain.Logger) (*service.Service, error) {
		st, err := indexstore.Open(cfg.Index.Backend, cfg.Paths.IndexPath)
		if err != nil {
			return nil, err
		}
		opener := extractor.OpenerFunc(func(context.Context, string) (extractor.Document, error) { return doc, nil })
		return service.New(service.Deps{
			Extractor: extractor.New(opener, chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap), extractor.Config{
				TextDir:  cfg.Paths.TextDir,
				ImageDir: cfg.Paths.ImageDir,
			}, log),
			Embedder:   embedding.NewPipeline(hashing.NewEmbedder(), embedding.PipelineConfig{Dimension: cfg.Embedder.Dimension}, log),
			Store:      st,
			Assembler:  answer.New(cannedGenerator{}, answer.Config{}, log),
			Summarizer: summarizer.NewFrequencySummarizer(),
		}, service.Config{TopK: 2}, log), nil
	}
}

var paper = memDoc{texts: []string{
	"Rectified flow transports noise to data along straight paths. Straight paths need few sampling steps.",
	"The reflow procedure straightens trajectories learned by the first model.",
}}

func TestRoot_IndexThenQuery(t *testing.T) {
	resetFlags(t)
	path, cfg := writeConfig(t, "json")
	newService = fakeBuild(paper)

	out, err := execute(t, "--config", path, "--pdf", "paper.pdf", "--query", "why are straight paths useful?")
	require.NoError(t, err)
	assert.Contains(t, out, "Extracted 2 text chunks and 0 images")
	assert.Contains(t, out, "Index saved to "+cfg.Paths.IndexPath)
	assert.Contains(t, out, "Summary:")
	assert.Contains(t, out, "Question: why are straight paths useful?")
	assert.Contains(t, out, "Straight paths make sampling cheap.")
	assert.Contains(t, out, "--- Match 1 (similarity:")

	// a later query-only run reads the saved index
	pdfPath, query = "", ""
	out, err = execute(t, "--config", path, "--query", "what does reflow do?")
	require.NoError(t, err)
	assert.Contains(t, out, "Top Matching Items:")
	assert.NotContains(t, out, "Extracted")
}

func TestChat_RunsProgramOverLoadedIndex(t *testing.T) {
	resetFlags(t)
	path, _ := writeConfig(t, "sqlite")
	newService = fakeBuild(paper)

	var got tea.Model
	prev := runProgram
	runProgram = func(m tea.Model) error { got = m; return nil }
	t.Cleanup(func() { runProgram = prev })

	_, err := execute(t, "chat", "--config", path)
	assert.ErrorContains(t, err, "no index found")
	assert.Nil(t, got)

	_, err = execute(t, "chat", "--config", path, "--pdf", "paper.pdf")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
