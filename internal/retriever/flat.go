package retriever

import (
	"errors"
	"math"
	"sort"
	"sync"

	"pdfrag/internal/domain"
)

// DefaultTopK is used when callers pass a non-positive topK.
const DefaultTopK = 5

// FindSimilar ranks every embedded item by cosine similarity to query and
// returns copies of the best topK, most similar first. Equal scores keep
// their original order.
func FindSimilar(query []float64, items []domain.ContentItem, topK int) []domain.Match {
	if topK <= 0 {
		topK = DefaultTopK
	}
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, 0, len(items))
	for i := range items {
		if items[i].Embedding == nil {
			continue
		}
		scores = append(scores, scored{i, CosineSimilarity(query, items[i].Embedding)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK > len(scores) {
		topK = len(scores)
	}
	results := make([]domain.Match, 0, topK)
	for _, s := range scores[:topK] {
		results = append(results, domain.Match{Item: items[s.idx].Clone(), Similarity: s.score})
	}
	return results
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either vector has
// zero magnitude.
func CosineSimilarity(a, b []float64) float64 {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}

// Flat is an in-memory, brute-force index over a fixed item set.
type Flat struct {
	mu        sync.RWMutex
	dimension int
	items     []domain.ContentItem
}

func NewFlat(dimension int) *Flat { return &Flat{dimension: dimension} }

// Reset replaces the indexed items. Items without an embedding are skipped;
// embeddings of the wrong dimension are rejected.
func (f *Flat) Reset(items []domain.ContentItem) error {
	kept := make([]domain.ContentItem, 0, len(items))
	for _, it := range items {
		if it.Embedding == nil {
			continue
		}
		if f.dimension > 0 && len(it.Embedding) != f.dimension {
			return errors.New("vector dimension mismatch: " + it.ID)
		}
		kept = append(kept, it)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = kept
	return nil
}

// Search returns the topK most similar items.
func (f *Flat) Search(query []float64, topK int) []domain.Match {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FindSimilar(query, f.items, topK)
}

// Items returns copies of the indexed items in insertion order.
func (f *Flat) Items() []domain.ContentItem {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.ContentItem, len(f.items))
	for i := range f.items {
		out[i] = f.items[i].Clone()
	}
	return out
}

// Len returns the number of indexed items.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.items)
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
