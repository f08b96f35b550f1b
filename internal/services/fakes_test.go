package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-notes/inkwell-backend/internal/data/repos/notes"
	"github.com/inkwell-notes/inkwell-backend/internal/domain"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
)

func testLogger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("logger: %v", err)
	}
	return log
}

// fakeNoteRepo and fakeChunkRepo back service tests with plain maps. The tx
// argument is ignored; swap atomicity is covered by the repo integration
// tests.

type fakeNoteRepo struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*domain.Note
	order []uuid.UUID
}

func newFakeNoteRepo() *fakeNoteRepo {
	return &fakeNoteRepo{byID: map[uuid.UUID]*domain.Note{}}
}

func (f *fakeNoteRepo) Create(ctx context.Context, tx *gorm.DB, n *domain.Note) (*domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	cp := *n
	f.byID[n.ID] = &cp
	f.order = append(f.order, n.ID)
	return n, nil
}

func (f *fakeNoteRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	if !ok {
		return nil, notes.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (f *fakeNoteRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Note
	for i := len(f.order) - 1; i >= 0; i-- {
		if n, ok := f.byID[f.order[i]]; ok && n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeNoteRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	if !ok {
		return notes.ErrNotFound
	}
	if v, ok := updates["title"].(string); ok {
		n.Title = v
	}
	if v, ok := updates["content"]; ok {
		if raw, ok := v.([]byte); ok {
			n.Content = raw
		}
	}
	return nil
}

func (f *fakeNoteRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

type fakeChunkRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.Chunk
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{rows: map[uuid.UUID]*domain.Chunk{}}
}

func (f *fakeChunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*domain.Chunk) ([]*domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		cp := *c
		f.rows[c.ID] = &cp
	}
	return chunks, nil
}

func (f *fakeChunkRepo) GetByNoteID(ctx context.Context, tx *gorm.DB, noteID uuid.UUID) ([]*domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Chunk
	for _, c := range f.rows {
		if c.NoteID == noteID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (f *fakeChunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Chunk
	for _, id := range ids {
		if c, ok := f.rows[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) IDsByNoteID(ctx context.Context, tx *gorm.DB, noteID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for id, c := range f.rows {
		if c.NoteID == noteID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) DeleteByNoteID(ctx context.Context, tx *gorm.DB, noteID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.rows {
		if c.NoteID == noteID {
			delete(f.rows, id)
		}
	}
	return nil
}

func (f *fakeChunkRepo) CountByNoteID(ctx context.Context, tx *gorm.DB, noteID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.rows {
		if c.NoteID == noteID {
			n++
		}
	}
	return n, nil
}

// fakeAI returns deterministic unit vectors so retrieval order is stable.
// Each distinct text hashes to a direction; identical texts collide on
// purpose.

type fakeAI struct {
	mu            sync.Mutex
	dim           int
	embedErr      error
	generateErr   error
	answer        string
	jsonOut       map[string]any
	embedCalls    int
	generateCalls int
	lastSystem    string
	lastUser      string
}

func newFakeAI(dim int) *fakeAI {
	return &fakeAI{dim: dim, answer: "fake answer"}
}

func (f *fakeAI) vectorFor(text string) []float32 {
	v := make([]float32, f.dim)
	h := 0
	for _, r := range text {
		h = h*31 + int(r)
	}
	if h < 0 {
		h = -h
	}
	v[h%f.dim] = 1
	return v
}

func (f *fakeAI) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectorFor(t)
	}
	return out, nil
}

func (f *fakeAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.vectorFor(text), nil
}

func (f *fakeAI) GenerateAnswer(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	f.lastSystem, f.lastUser = system, user
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.answer, nil
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user string, schema map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	f.lastSystem, f.lastUser = system, user
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	if f.jsonOut == nil {
		return map[string]any{}, nil
	}
	return f.jsonOut, nil
}

type fakePDF struct {
	pages []string
	err   error
}

func (f *fakePDF) ExtractPages(ctx context.Context, data []byte) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.pages != nil {
		return f.pages, nil
	}
	return []string{fmt.Sprintf("extracted %d bytes", len(data))}, nil
}
