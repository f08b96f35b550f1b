package vecstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
)

type memoryStore struct {
	log *logger.Logger
	dim int

	mu   sync.RWMutex
	seq  int
	rows map[string]*memoryRow
}

type memoryRow struct {
	vector   []float32
	metadata map[string]any
	order    int
}

// NewMemoryStore returns a brute-force cosine-similarity store. It backs
// local development and tests; production deployments use the Qdrant store.
func NewMemoryStore(log *logger.Logger, dim int) VectorStore {
	return &memoryStore{
		log:  log.With("service", "MemoryVectorStore"),
		dim:  dim,
		rows: make(map[string]*memoryRow),
	}
}

func (s *memoryStore) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	for _, v := range vectors {
		if v.ID == "" {
			return fmt.Errorf("vector id is required")
		}
		if s.dim > 0 && len(v.Values) != s.dim {
			return fmt.Errorf("vector %q dimension mismatch: expected=%d got=%d", v.ID, s.dim, len(v.Values))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		values := make([]float32, len(v.Values))
		copy(values, v.Values)
		md := make(map[string]any, len(v.Metadata))
		for k, val := range v.Metadata {
			md[k] = val
		}
		order := s.seq
		if existing, ok := s.rows[v.ID]; ok {
			order = existing.order
		} else {
			s.seq++
		}
		s.rows[v.ID] = &memoryRow{vector: values, metadata: md, order: order}
	}
	return nil
}

func (s *memoryStore) QueryMatches(ctx context.Context, q []float32, topK int, filter map[string]any) ([]VectorMatch, error) {
	if len(q) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	if s.dim > 0 && len(q) != s.dim {
		return nil, fmt.Errorf("query vector dimension mismatch: expected=%d got=%d", s.dim, len(q))
	}
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		id    string
		score float64
		order int
	}
	candidates := make([]scored, 0, len(s.rows))
	for id, row := range s.rows {
		if !payloadMatches(row.metadata, filter) {
			continue
		}
		candidates = append(candidates, scored{id: id, score: cosine(q, row.vector), order: row.order})
	}

	// Ties resolve by insertion order so identical inputs rank stably.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score == candidates[j].score {
			return candidates[i].order < candidates[j].order
		}
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]VectorMatch, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, VectorMatch{ID: c.id, Score: c.score})
	}
	return out, nil
}

func (s *memoryStore) DeleteIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.rows, id)
	}
	return nil
}

func payloadMatches(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
