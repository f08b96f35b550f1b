package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	NoteTypeNote = "note"
	NoteTypePDF  = "pdf"
)

// Note is the mutable source of truth. Content holds the editor's block
// tree as opaque JSON; the text extractor flattens it at indexing time.
type Note struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Title     string         `gorm:"not null;column:title" json:"title"`
	Content   datatypes.JSON `gorm:"type:jsonb;column:content" json:"content"`
	Type      string         `gorm:"not null;default:note;column:type" json:"type"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Note) TableName() string {
	return "note"
}
