package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/inkwell-notes/inkwell-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *domain.User {
	tb.Helper()
	u := &domain.User{
		ID:    uuid.New(),
		Email: email,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedNote(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, title string) *domain.Note {
	tb.Helper()
	n := &domain.Note{
		ID:      uuid.New(),
		UserID:  userID,
		Title:   title,
		Content: datatypes.JSON([]byte(`{}`)),
		Type:    domain.NoteTypeNote,
	}
	if err := tx.WithContext(ctx).Create(n).Error; err != nil {
		tb.Fatalf("seed note: %v", err)
	}
	return n
}

func SeedChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, noteID, userID uuid.UUID, index int) *domain.Chunk {
	tb.Helper()
	c := &domain.Chunk{
		ID:        uuid.New(),
		NoteID:    noteID,
		UserID:    userID,
		Index:     index,
		Text:      fmt.Sprintf("chunk %d", index),
		Embedding: datatypes.JSON([]byte(`[]`)),
		Metadata:  datatypes.JSON([]byte(`{}`)),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}
