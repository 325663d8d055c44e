// Package extractor turns a PDF into content items: chunked page text and
// the page's embedded raster images, each persisted to its own file.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"pdfrag/internal/domain"
)

const DefaultMinChunkChars = 10

// Image is one raster image as stored in the PDF.
type Image struct {
	Data   []byte
	Format string
	// Err is set when the image exists but its bytes could not be read.
	Err error
}

// Document is an opened PDF. Pages are zero-indexed.
type Document interface {
	PageCount() int
	PageText(ctx context.Context, page int) (string, error)
	PageImages(ctx context.Context, page int) ([]Image, error)
	Close() error
}

// Opener opens a PDF file as a Document.
type Opener interface {
	Open(ctx context.Context, path string) (Document, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (Document, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Document, error) { return f(ctx, path) }

type Config struct {
	TextDir  string
	ImageDir string
	// Chunks whose trimmed length is at or below this are not indexed.
	MinChunkChars int
}

// Result holds the extracted items in page order plus anything skipped.
type Result struct {
	Items    []domain.ContentItem
	Failures []domain.ItemFailure
}

// Counts returns the number of text and image items.
func (r Result) Counts() (text, images int) {
	for _, it := range r.Items {
		if it.Kind() == domain.KindImage {
			images++
		} else {
			text++
		}
	}
	return text, images
}

type Extractor struct {
	opener  Opener
	chunker domain.Chunker
	cfg     Config
	log     domain.Logger
}

func New(opener Opener, chunker domain.Chunker, cfg Config, log domain.Logger) *Extractor {
	if cfg.MinChunkChars <= 0 {
		cfg.MinChunkChars = DefaultMinChunkChars
	}
	if cfg.TextDir == "" {
		cfg.TextDir = filepath.Join("static", "text")
	}
	if cfg.ImageDir == "" {
		cfg.ImageDir = filepath.Join("static", "images")
	}
	return &Extractor{opener: opener, chunker: chunker, cfg: cfg, log: log}
}

// Extract reads every page of the PDF at pdfPath. Only a document that
// cannot be opened (or a cancelled context) is fatal; problems with single
// pages or images are recorded in Result.Failures.
func (e *Extractor) Extract(ctx context.Context, pdfPath string) (Result, error) {
	doc, err := e.opener.Open(ctx, pdfPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w %s: %v", domain.ErrOpenDocument, pdfPath, err)
	}
	defer doc.Close()

	for _, dir := range []string{e.cfg.TextDir, e.cfg.ImageDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	var res Result
	pages := doc.PageCount()
	e.log.Info("extracting document", "path", pdfPath, "pages", pages)
	for page := 0; page < pages; page++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e.extractText(ctx, doc, page, &res)
		e.extractImages(ctx, doc, page, &res)
	}

	text, images := res.Counts()
	e.log.Info(fmt.Sprintf("extracted %d items (%d text chunks and %d images)", len(res.Items), text, images),
		"failures", len(res.Failures))
	return res, nil
}

func (e *Extractor) extractText(ctx context.Context, doc Document, page int, res *Result) {
	text, err := doc.PageText(ctx, page)
	if err != nil {
		e.fail(res, fmt.Sprintf("page_%d", page), "text", err)
		return
	}
	for ordinal, chunk := range e.chunker.Chunk(text) {
		if len([]rune(strings.TrimSpace(chunk))) <= e.cfg.MinChunkChars {
			continue
		}
		id := domain.ItemID(domain.KindText, page, ordinal)
		path := filepath.Join(e.cfg.TextDir, id+".txt")
		if err := os.WriteFile(path, []byte(chunk), 0o644); err != nil {
			e.fail(res, id, "write", err)
			continue
		}
		res.Items = append(res.Items, domain.ContentItem{
			ID:      id,
			Page:    page,
			Path:    path,
			Content: domain.TextContent{Text: chunk},
		})
	}
}

func (e *Extractor) extractImages(ctx context.Context, doc Document, page int, res *Result) {
	images, err := doc.PageImages(ctx, page)
	if err != nil {
		e.fail(res, fmt.Sprintf("page_%d", page), "images", err)
		return
	}
	for ordinal, img := range images {
		id := domain.ItemID(domain.KindImage, page, ordinal)
		if img.Err != nil {
			e.fail(res, id, "read", img.Err)
			continue
		}
		data, err := ToPNG(img.Data)
		if err != nil {
			e.fail(res, id, "decode", fmt.Errorf("%s image: %w", img.Format, err))
			continue
		}
		path := filepath.Join(e.cfg.ImageDir, id+".png")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			e.fail(res, id, "write", err)
			continue
		}
		res.Items = append(res.Items, domain.ContentItem{
			ID:      id,
			Page:    page,
			Path:    path,
			Content: domain.ImageContent{Data: data},
		})
	}
}

func (e *Extractor) fail(res *Result, id, stage string, err error) {
	e.log.Warn("skipping content", "id", id, "stage", stage, "err", err)
	res.Failures = append(res.Failures, domain.ItemFailure{ID: id, Stage: stage, Err: err})
}

// ToPNG decodes any registered raster format and re-encodes it as PNG.
func ToPNG(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
