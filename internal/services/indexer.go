package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/inkwell-notes/inkwell-backend/internal/data/repos/notes"
	"github.com/inkwell-notes/inkwell-backend/internal/domain"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/apierr"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/vecstore"
)

const (
	payloadOwnerID = "owner_id"
	payloadNoteID  = "note_id"
)

// PDFExtractor pulls plain text out of an uploaded document, one string per
// page, empty entries preserved so page numbering holds.
type PDFExtractor interface {
	ExtractPages(ctx context.Context, data []byte) ([]string, error)
}

// Indexer keeps a note's chunk rows and vector points in step with its
// current text.
type Indexer interface {
	// Reindex rebuilds the chunk set for one note and returns the number
	// of chunks that now exist for it.
	Reindex(ctx context.Context, noteID, ownerID uuid.UUID, supplemental string) (int, error)
	// UploadPDF creates a pdf-typed note from raw bytes and indexes its
	// extracted text. An empty title falls back to the filename. The note
	// is removed again if indexing fails.
	UploadPDF(ctx context.Context, ownerID uuid.UUID, filename, title string, data []byte) (*domain.Note, int, error)
	// DropIndex removes a note's chunk rows and vector points.
	DropIndex(ctx context.Context, noteID uuid.UUID) error
}

type indexerService struct {
	log       *logger.Logger
	db        *gorm.DB
	noteRepo  notes.NoteRepo
	chunkRepo notes.ChunkRepo
	ai        AIClient
	vectors   vecstore.VectorStore
	pdf       PDFExtractor
	chunker   *Chunker
}

func NewIndexer(
	baseLog *logger.Logger,
	db *gorm.DB,
	noteRepo notes.NoteRepo,
	chunkRepo notes.ChunkRepo,
	ai AIClient,
	vectors vecstore.VectorStore,
	pdf PDFExtractor,
	chunker *Chunker,
) Indexer {
	return &indexerService{
		log:       baseLog.With("service", "Indexer"),
		db:        db,
		noteRepo:  noteRepo,
		chunkRepo: chunkRepo,
		ai:        ai,
		vectors:   vectors,
		pdf:       pdf,
		chunker:   chunker,
	}
}

func (s *indexerService) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *indexerService) Reindex(ctx context.Context, noteID, ownerID uuid.UUID, supplemental string) (int, error) {
	note, err := s.noteRepo.GetByID(ctx, nil, noteID)
	if err != nil {
		if errors.Is(err, notes.ErrNotFound) {
			return 0, apierr.NotFound(fmt.Errorf("note %s not found", noteID))
		}
		return 0, apierr.Internal(err)
	}
	if note.UserID != ownerID {
		return 0, apierr.Authorization(errors.New("note does not belong to requesting user"))
	}

	in := buildIndexInput(note, supplemental)
	oldIDs, err := s.chunkRepo.IDsByNoteID(ctx, nil, noteID)
	if err != nil {
		return 0, apierr.Internal(err)
	}

	if in.text == "" {
		if err := s.replaceChunks(ctx, noteID, nil, oldIDs); err != nil {
			return 0, err
		}
		s.log.Info("Note index cleared", "note_id", note.ID)
		return 0, nil
	}

	pieces := s.chunker.Chunk(in.text)
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}

	// Embed before touching storage: if the provider fails, the previous
	// chunk set keeps serving queries.
	embeddings, err := s.ai.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(embeddings) != len(pieces) {
		return 0, apierr.Embedding(fmt.Errorf("expected %d embeddings, got %d", len(pieces), len(embeddings)))
	}

	chunks, err := buildChunks(note, pieces, embeddings, in.pages)
	if err != nil {
		return 0, apierr.Internal(err)
	}

	if err := s.upsertVectors(ctx, note, chunks, embeddings); err != nil {
		return 0, err
	}
	if err := s.replaceChunks(ctx, noteID, chunks, oldIDs); err != nil {
		return 0, err
	}

	s.log.Info("Note reindexed", "note_id", note.ID, "chunks", len(chunks))
	return len(chunks), nil
}

// pageMark records where one source page's text begins in the joined
// indexable text, in runes.
type pageMark struct {
	start  int
	number int
}

type indexInput struct {
	text  string
	pages []pageMark
}

// buildIndexInput joins title, supplemental text, and the note body with
// paragraph breaks. PDF notes keep one content block per source page, so the
// joined text carries a page mark per block; other notes have no pages. An
// untitled empty note yields "".
func buildIndexInput(note *domain.Note, supplemental string) indexInput {
	var in indexInput
	var parts []string
	offset := 0

	add := func(part string, page int) {
		if part == "" {
			return
		}
		if len(parts) > 0 {
			offset += 2
		}
		if page > 0 {
			in.pages = append(in.pages, pageMark{start: offset, number: page})
		}
		parts = append(parts, part)
		offset += len([]rune(part))
	}

	add(NormalizeWhitespace(note.Title), 0)
	add(NormalizeLines(supplemental), 0)
	if note.Type == domain.NoteTypePDF {
		for i, page := range pageTexts(note.Content) {
			add(NormalizeLines(page), i+1)
		}
	} else {
		add(ExtractPlainTextJSON(note.Content), 0)
	}

	in.text = strings.Join(parts, "\n\n")
	return in
}

// pageTexts flattens each top-level content block separately. For pdf-typed
// notes blocks map 1:1 to source pages.
func pageTexts(raw []byte) []string {
	var blocks []any
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	out := make([]string, len(blocks))
	for i, block := range blocks {
		out[i] = strings.Join(CollectText(block), " ")
	}
	return out
}

// pageFor maps a chunk's start offset to the source page it begins on. A
// chunk starting in the title or supplemental prefix runs into the first
// page, so it gets that page; notes without pages yield nil.
func pageFor(pages []pageMark, start int) *int {
	if len(pages) == 0 {
		return nil
	}
	number := &pages[0].number
	for i := range pages {
		if pages[i].start > start {
			break
		}
		number = &pages[i].number
	}
	return number
}

func buildChunks(note *domain.Note, pieces []Piece, embeddings [][]float32, pages []pageMark) ([]*domain.Chunk, error) {
	chunks := make([]*domain.Chunk, len(pieces))
	for i, p := range pieces {
		emb, err := json.Marshal(embeddings[i])
		if err != nil {
			return nil, fmt.Errorf("encode embedding: %w", err)
		}
		meta, err := json.Marshal(domain.ChunkMetadata{
			UserID:       note.UserID,
			PageNumber:   pageFor(pages, p.Start),
			SectionTitle: p.SectionTitle,
		})
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		chunks[i] = &domain.Chunk{
			ID:        uuid.New(),
			NoteID:    note.ID,
			UserID:    note.UserID,
			Index:     p.Index,
			Text:      p.Text,
			Embedding: datatypes.JSON(emb),
			Metadata:  datatypes.JSON(meta),
		}
	}
	return chunks, nil
}

func (s *indexerService) upsertVectors(ctx context.Context, note *domain.Note, chunks []*domain.Chunk, embeddings [][]float32) error {
	vectors := make([]vecstore.Vector, len(chunks))
	for i, c := range chunks {
		vectors[i] = vecstore.Vector{
			ID:     c.ID.String(),
			Values: embeddings[i],
			Metadata: map[string]any{
				payloadOwnerID: note.UserID.String(),
				payloadNoteID:  note.ID.String(),
			},
		}
	}
	if err := s.vectors.Upsert(ctx, vectors); err != nil {
		return apierr.Internal(fmt.Errorf("upsert vectors: %w", err))
	}
	return nil
}

// replaceChunks swaps the note's chunk rows in one transaction, then drops
// the superseded vector points. New points are already live at this point,
// so a query observes either the old set or the new one, never neither.
func (s *indexerService) replaceChunks(ctx context.Context, noteID uuid.UUID, chunks []*domain.Chunk, oldIDs []uuid.UUID) error {
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if err := s.chunkRepo.DeleteByNoteID(ctx, tx, noteID); err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		_, err := s.chunkRepo.Create(ctx, tx, chunks)
		return err
	})
	if err != nil {
		return apierr.Internal(fmt.Errorf("swap chunk rows: %w", err))
	}

	if len(oldIDs) > 0 {
		ids := make([]string, len(oldIDs))
		for i, id := range oldIDs {
			ids[i] = id.String()
		}
		if err := s.vectors.DeleteIDs(ctx, ids); err != nil {
			// Stale points resolve to no chunk row and fall out of results.
			s.log.Warn("Failed to delete superseded vector points", "note_id", noteID, "count", len(ids), "error", err.Error())
		}
	}
	return nil
}

func (s *indexerService) UploadPDF(ctx context.Context, ownerID uuid.UUID, filename, title string, data []byte) (*domain.Note, int, error) {
	pages, err := s.pdf.ExtractPages(ctx, data)
	if err != nil {
		return nil, 0, apierr.Validation(fmt.Errorf("could not extract text from PDF: %w", err))
	}
	hasText := false
	for i, page := range pages {
		pages[i] = NormalizeLines(page)
		if pages[i] != "" {
			hasText = true
		}
	}
	if !hasText {
		// A scan-only PDF would otherwise become a note whose title alone
		// gets indexed.
		return nil, 0, apierr.Validation(errors.New("no extractable text in PDF"))
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	if title == "" {
		title = "Uploaded PDF"
	}

	// One block per source page, so page numbers survive later reindexes.
	blocks := make([]map[string]any, len(pages))
	for i, page := range pages {
		blocks[i] = map[string]any{
			"type":    "paragraph",
			"content": []map[string]any{{"type": "text", "text": page}},
		}
	}
	content, err := json.Marshal(blocks)
	if err != nil {
		return nil, 0, apierr.Internal(err)
	}

	note := &domain.Note{
		UserID:  ownerID,
		Title:   title,
		Content: datatypes.JSON(content),
		Type:    domain.NoteTypePDF,
	}
	note, err = s.noteRepo.Create(ctx, nil, note)
	if err != nil {
		return nil, 0, apierr.Internal(fmt.Errorf("create note: %w", err))
	}

	count, err := s.Reindex(ctx, note.ID, ownerID, "")
	if err != nil {
		// Roll the note back so a failed upload leaves nothing behind.
		if delErr := s.noteRepo.Delete(ctx, nil, note.ID); delErr != nil {
			s.log.Error("Failed to remove note after indexing failure", "note_id", note.ID, "error", delErr.Error())
		}
		return nil, 0, err
	}
	return note, count, nil
}

func (s *indexerService) DropIndex(ctx context.Context, noteID uuid.UUID) error {
	oldIDs, err := s.chunkRepo.IDsByNoteID(ctx, nil, noteID)
	if err != nil {
		return apierr.Internal(err)
	}
	return s.replaceChunks(ctx, noteID, nil, oldIDs)
}
