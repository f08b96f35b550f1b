package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/inkwell-notes/inkwell-backend/internal/domain"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/apierr"
)

// recordingScheduler records schedule calls and runs the synchronous paths
// straight through the wrapped indexer.
type recordingScheduler struct {
	indexer Indexer

	mu    sync.Mutex
	calls []uuid.UUID
}

func (r *recordingScheduler) Schedule(noteID, ownerID uuid.UUID, supplemental string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, noteID)
}

func (r *recordingScheduler) Reindex(ctx context.Context, noteID, ownerID uuid.UUID, supplemental string) (int, error) {
	return r.indexer.Reindex(ctx, noteID, ownerID, supplemental)
}

func (r *recordingScheduler) DropIndex(ctx context.Context, noteID uuid.UUID) error {
	return r.indexer.DropIndex(ctx, noteID)
}

func (r *recordingScheduler) Close() {}

func (r *recordingScheduler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type noteServiceFixture struct {
	*indexerFixture
	sched *recordingScheduler
	svc   NoteService
}

func newNoteServiceFixture(t *testing.T) *noteServiceFixture {
	t.Helper()
	base := newIndexerFixture(t)
	sched := &recordingScheduler{indexer: base.indexer}
	return &noteServiceFixture{
		indexerFixture: base,
		sched:          sched,
		svc:            NewNoteService(testLogger(t), base.noteRepo, sched),
	}
}

func TestNoteCreateDefaults(t *testing.T) {
	f := newNoteServiceFixture(t)
	owner := uuid.New()

	note, err := f.svc.Create(context.Background(), owner, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if note.Title != "Untitled" {
		t.Fatalf("title = %q", note.Title)
	}
	if string(note.Content) != "[]" {
		t.Fatalf("content = %s", note.Content)
	}
	if note.Type != domain.NoteTypeNote {
		t.Fatalf("type = %q", note.Type)
	}
	if f.sched.count() != 1 {
		t.Fatalf("expected 1 scheduled reindex, got %d", f.sched.count())
	}
}

func TestNoteCreateRejectsInvalidJSON(t *testing.T) {
	f := newNoteServiceFixture(t)
	_, err := f.svc.Create(context.Background(), uuid.New(), "T", json.RawMessage("{not json"))
	if !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNoteUpdateSchedulesReindex(t *testing.T) {
	f := newNoteServiceFixture(t)
	owner := uuid.New()
	note, err := f.svc.Create(context.Background(), owner, "Before", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	before := f.sched.count()

	title := "After"
	got, err := f.svc.Update(context.Background(), owner, note.ID, NoteUpdate{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "After" {
		t.Fatalf("title = %q", got.Title)
	}
	if f.sched.count() != before+1 {
		t.Fatalf("update did not schedule a reindex")
	}
}

func TestNoteUpdateNoFieldsIsNoop(t *testing.T) {
	f := newNoteServiceFixture(t)
	owner := uuid.New()
	note, _ := f.svc.Create(context.Background(), owner, "Same", nil)
	before := f.sched.count()

	got, err := f.svc.Update(context.Background(), owner, note.ID, NoteUpdate{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "Same" {
		t.Fatalf("title changed: %q", got.Title)
	}
	if f.sched.count() != before {
		t.Fatal("empty update scheduled a reindex")
	}
}

func TestNoteUpdateWrongOwner(t *testing.T) {
	f := newNoteServiceFixture(t)
	note, _ := f.svc.Create(context.Background(), uuid.New(), "Private", nil)

	title := "Hijacked"
	_, err := f.svc.Update(context.Background(), uuid.New(), note.ID, NoteUpdate{Title: &title})
	if !apierr.IsKind(err, apierr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestNoteGetUnknown(t *testing.T) {
	f := newNoteServiceFixture(t)
	_, err := f.svc.Get(context.Background(), uuid.New(), uuid.New())
	if !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestNoteListEmpty(t *testing.T) {
	f := newNoteServiceFixture(t)
	got, err := f.svc.List(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got == nil {
		t.Fatal("List must return an empty slice, not nil")
	}
	if len(got) != 0 {
		t.Fatalf("expected 0 notes, got %d", len(got))
	}
}

func TestNoteDeleteRemovesChunks(t *testing.T) {
	f := newNoteServiceFixture(t)
	owner := uuid.New()
	note := f.seedNote(t, owner, "Doomed", "text that will be indexed then removed")

	ctx := context.Background()
	if _, err := f.indexer.Reindex(ctx, note.ID, owner, ""); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	if err := f.svc.Delete(ctx, owner, note.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := f.svc.Get(ctx, owner, note.ID); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("expected not_found after delete, got %v", err)
	}
	n, _ := f.chunkRepo.CountByNoteID(ctx, nil, note.ID)
	if n != 0 {
		t.Fatalf("chunks survived delete: %d", n)
	}
}

func TestNoteDeleteWrongOwner(t *testing.T) {
	f := newNoteServiceFixture(t)
	owner := uuid.New()
	note := f.seedNote(t, owner, "Safe", "text")

	err := f.svc.Delete(context.Background(), uuid.New(), note.ID)
	if !apierr.IsKind(err, apierr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if _, getErr := f.svc.Get(context.Background(), owner, note.ID); getErr != nil {
		t.Fatalf("note should still exist: %v", getErr)
	}
}
