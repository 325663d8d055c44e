package indexstore

import (
	"errors"
	"os"

	"pdfrag/internal/domain"
)

// MaterializeReport lists what Materialize loaded and what it could not.
type MaterializeReport struct {
	Loaded   int
	Failures []domain.ItemFailure
}

// Materialize fills in content that the index does not carry by reading each
// item's backing file: image bytes always, text only when it is empty. A
// missing or unreadable file is logged and recorded; the item keeps its
// unset content. items is updated in place.
func Materialize(items []domain.ContentItem, log domain.Logger) MaterializeReport {
	var report MaterializeReport
	for i := range items {
		it := &items[i]
		switch c := it.Content.(type) {
		case domain.ImageContent:
			if c.Materialized() {
				continue
			}
			data, err := readBacking(it.Path)
			if err != nil {
				report.fail(log, it.ID, err)
				continue
			}
			it.Content = domain.ImageContent{Data: data}
			report.Loaded++
		case domain.TextContent:
			if c.Text != "" {
				continue
			}
			data, err := readBacking(it.Path)
			if err != nil {
				report.fail(log, it.ID, err)
				continue
			}
			it.Content = domain.TextContent{Text: string(data)}
			report.Loaded++
		}
	}
	return report
}

func (r *MaterializeReport) fail(log domain.Logger, id string, err error) {
	log.Warn("could not materialize item content", "id", id, "err", err)
	r.Failures = append(r.Failures, domain.ItemFailure{ID: id, Stage: "materialize", Err: err})
}

func readBacking(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("item has no backing path")
	}
	return os.ReadFile(path)
}
