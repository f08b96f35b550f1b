package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/inkwell-notes/inkwell-backend/internal/data/repos/notes"
	"github.com/inkwell-notes/inkwell-backend/internal/domain"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/apierr"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/vecstore"
)

const (
	// DefaultTopK is how many chunks a retrieval returns when the caller
	// does not say otherwise.
	DefaultTopK = 5

	// The vector query asks for more candidates than the caller wants so
	// that points without a surviving chunk row do not shrink the result.
	retrieveOversample = 20
)

// RetrievedChunk pairs a chunk row with its similarity score.
type RetrievedChunk struct {
	Chunk *domain.Chunk
	Score float64
}

// Retriever answers "which of this user's chunks are closest to this query".
type Retriever interface {
	Search(ctx context.Context, ownerID uuid.UUID, query string, topK int) ([]RetrievedChunk, error)
}

type retrieverService struct {
	log       *logger.Logger
	chunkRepo notes.ChunkRepo
	ai        AIClient
	vectors   vecstore.VectorStore
}

func NewRetriever(baseLog *logger.Logger, chunkRepo notes.ChunkRepo, ai AIClient, vectors vecstore.VectorStore) Retriever {
	return &retrieverService{
		log:       baseLog.With("service", "Retriever"),
		chunkRepo: chunkRepo,
		ai:        ai,
		vectors:   vectors,
	}
}

func (s *retrieverService) Search(ctx context.Context, ownerID uuid.UUID, query string, topK int) ([]RetrievedChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apierr.Validation(errors.New("query must not be empty"))
	}
	if ownerID == uuid.Nil {
		return nil, apierr.Authorization(errors.New("missing owner"))
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	qvec, err := s.ai.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.vectors.QueryMatches(ctx, qvec, topK*retrieveOversample, map[string]any{
		payloadOwnerID: ownerID.String(),
	})
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if len(matches) == 0 {
		return []RetrievedChunk{}, nil
	}

	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		id, parseErr := uuid.Parse(m.ID)
		if parseErr != nil {
			s.log.Warn("Vector point with non-uuid id", "point_id", m.ID)
			continue
		}
		ids = append(ids, id)
	}

	rows, err := s.chunkRepo.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	byID := make(map[uuid.UUID]*domain.Chunk, len(rows))
	for _, c := range rows {
		byID[c.ID] = c
	}

	out := make([]RetrievedChunk, 0, topK)
	for _, m := range matches {
		id, parseErr := uuid.Parse(m.ID)
		if parseErr != nil {
			continue
		}
		c, ok := byID[id]
		if !ok {
			// Point outlived its chunk row; skip it.
			continue
		}
		if c.UserID != ownerID {
			s.log.Error("Vector match crossed owner boundary", "chunk_id", c.ID)
			continue
		}
		out = append(out, RetrievedChunk{Chunk: c, Score: m.Score})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}
