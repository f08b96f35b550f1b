package vecstore

import "context"

// VectorStore is the vector-search capability the retrieval pipeline is
// built on. Implementations must treat the filter as mandatory when one is
// supplied; there is no "match everything" escape hatch for scoped reads.
type VectorStore interface {
	Upsert(ctx context.Context, vectors []Vector) error
	// QueryMatches returns point IDs with similarity scores, best first.
	// Only points whose payload matches every filter key are candidates.
	QueryMatches(ctx context.Context, q []float32, topK int, filter map[string]any) ([]VectorMatch, error)
	DeleteIDs(ctx context.Context, ids []string) error
}

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type VectorMatch struct {
	ID    string
	Score float64
}
