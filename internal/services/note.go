package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/inkwell-notes/inkwell-backend/internal/data/repos/notes"
	"github.com/inkwell-notes/inkwell-backend/internal/domain"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/apierr"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
)

const defaultNoteTitle = "Untitled"

// NoteUpdate carries the fields a PUT may change. Nil means "leave as is".
type NoteUpdate struct {
	Title   *string         `json:"title"`
	Content json.RawMessage `json:"content"`
}

// NoteService owns the note lifecycle. Mutations that change indexable text
// hand the note to the reindex scheduler instead of blocking the request.
type NoteService interface {
	Create(ctx context.Context, ownerID uuid.UUID, title string, content json.RawMessage) (*domain.Note, error)
	Get(ctx context.Context, ownerID, noteID uuid.UUID) (*domain.Note, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*domain.Note, error)
	Update(ctx context.Context, ownerID, noteID uuid.UUID, upd NoteUpdate) (*domain.Note, error)
	Delete(ctx context.Context, ownerID, noteID uuid.UUID) error
}

type noteService struct {
	log       *logger.Logger
	noteRepo  notes.NoteRepo
	scheduler ReindexScheduler
}

func NewNoteService(baseLog *logger.Logger, noteRepo notes.NoteRepo, scheduler ReindexScheduler) NoteService {
	return &noteService{
		log:       baseLog.With("service", "NoteService"),
		noteRepo:  noteRepo,
		scheduler: scheduler,
	}
}

func (s *noteService) Create(ctx context.Context, ownerID uuid.UUID, title string, content json.RawMessage) (*domain.Note, error) {
	if title == "" {
		title = defaultNoteTitle
	}
	if len(content) == 0 {
		content = json.RawMessage("[]")
	} else if !json.Valid(content) {
		return nil, apierr.Validation(errors.New("content must be valid JSON"))
	}

	note := &domain.Note{
		UserID:  ownerID,
		Title:   title,
		Content: datatypes.JSON(content),
		Type:    domain.NoteTypeNote,
	}
	note, err := s.noteRepo.Create(ctx, nil, note)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("create note: %w", err))
	}

	s.scheduler.Schedule(note.ID, ownerID, "")
	return note, nil
}

func (s *noteService) Get(ctx context.Context, ownerID, noteID uuid.UUID) (*domain.Note, error) {
	return s.ownedNote(ctx, ownerID, noteID)
}

func (s *noteService) List(ctx context.Context, ownerID uuid.UUID) ([]*domain.Note, error) {
	out, err := s.noteRepo.ListByUser(ctx, nil, ownerID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if out == nil {
		out = []*domain.Note{}
	}
	return out, nil
}

func (s *noteService) Update(ctx context.Context, ownerID, noteID uuid.UUID, upd NoteUpdate) (*domain.Note, error) {
	if _, err := s.ownedNote(ctx, ownerID, noteID); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if upd.Title != nil {
		if *upd.Title == "" {
			return nil, apierr.Validation(errors.New("title must not be empty"))
		}
		updates["title"] = *upd.Title
	}
	if upd.Content != nil {
		if !json.Valid(upd.Content) {
			return nil, apierr.Validation(errors.New("content must be valid JSON"))
		}
		updates["content"] = []byte(upd.Content)
	}

	if len(updates) > 0 {
		if err := s.noteRepo.UpdateFields(ctx, nil, noteID, updates); err != nil {
			return nil, apierr.Internal(fmt.Errorf("update note: %w", err))
		}
		s.scheduler.Schedule(noteID, ownerID, "")
	}

	return s.ownedNote(ctx, ownerID, noteID)
}

func (s *noteService) Delete(ctx context.Context, ownerID, noteID uuid.UUID) error {
	if _, err := s.ownedNote(ctx, ownerID, noteID); err != nil {
		return err
	}

	// Drop derived state first; the note row going last means a crash in
	// between leaves an unindexed note rather than orphaned chunks. The
	// scheduler's per-note lock keeps a background rebuild from racing the
	// drop.
	if err := s.scheduler.DropIndex(ctx, noteID); err != nil {
		return err
	}
	if err := s.noteRepo.Delete(ctx, nil, noteID); err != nil {
		return apierr.Internal(fmt.Errorf("delete note: %w", err))
	}
	s.log.Info("Note deleted", "note_id", noteID)
	return nil
}

func (s *noteService) ownedNote(ctx context.Context, ownerID, noteID uuid.UUID) (*domain.Note, error) {
	note, err := s.noteRepo.GetByID(ctx, nil, noteID)
	if err != nil {
		if errors.Is(err, notes.ErrNotFound) {
			return nil, apierr.NotFound(fmt.Errorf("note %s not found", noteID))
		}
		return nil, apierr.Internal(err)
	}
	if note.UserID != ownerID {
		return nil, apierr.Authorization(errors.New("note does not belong to requesting user"))
	}
	return note, nil
}
