// Package pdfdoc opens PDF files for the extractor. Page text comes from the
// eino PDF parser, page count and raster images from pdfcpu.
package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"pdfrag/internal/extractor"
)

var disableConfigDir sync.Once

// Opener implements extractor.Opener.
type Opener struct{}

var _ extractor.Opener = Opener{}

func (Opener) Open(ctx context.Context, path string) (extractor.Document, error) {
	return Open(ctx, path)
}

// Document is a fully parsed PDF held in memory.
type Document struct {
	data  []byte
	pages []string
	conf  *model.Configuration
}

var _ extractor.Document = (*Document)(nil)

// Open reads and parses the PDF at path. Parser panics on malformed input
// are returned as errors.
func Open(ctx context.Context, path string) (doc *Document, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()

	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()

	count, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf structure: %w", err)
	}

	var p parser.Parser
	if p, err = pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true}); err != nil {
		return nil, fmt.Errorf("init pdf parser: %w", err)
	}
	docs, err := p.Parse(ctx, bytes.NewReader(data), parser.WithURI(path))
	if err != nil {
		return nil, fmt.Errorf("parse pdf text: %w", err)
	}

	if len(docs) > count {
		count = len(docs)
	}
	pages := make([]string, count)
	for i, d := range docs {
		if d != nil {
			pages[i] = d.Content
		}
	}
	return &Document{data: data, pages: pages, conf: conf}, nil
}

func (d *Document) PageCount() int { return len(d.pages) }

func (d *Document) PageText(ctx context.Context, page int) (string, error) {
	if page < 0 || page >= len(d.pages) {
		return "", fmt.Errorf("page %d out of range", page)
	}
	return d.pages[page], ctx.Err()
}

// PageImages returns the page's images ordered by object number.
func (d *Document) PageImages(ctx context.Context, page int) (images []extractor.Image, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			images, err = nil, fmt.Errorf("extract images from page %d: %v", page+1, r)
		}
	}()

	pageMaps, err := api.ExtractImagesRaw(bytes.NewReader(d.data), []string{strconv.Itoa(page + 1)}, d.conf)
	if err != nil {
		return nil, fmt.Errorf("extract images from page %d: %w", page+1, err)
	}
	for _, m := range pageMaps {
		objNrs := make([]int, 0, len(m))
		for nr := range m {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)
		for _, nr := range objNrs {
			img := m[nr]
			if img.Reader == nil {
				continue
			}
			data, err := io.ReadAll(img)
			if err != nil {
				images = append(images, extractor.Image{Format: img.FileType, Err: fmt.Errorf("read image object %d: %w", nr, err)})
				continue
			}
			images = append(images, extractor.Image{Data: data, Format: img.FileType})
		}
	}
	return images, nil
}

func (d *Document) Close() error {
	d.data = nil
	d.pages = nil
	return nil
}
