package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Chunk is an immutable derived snapshot of one text window of a note.
// A reindex always replaces a note's whole chunk set; rows are never
// updated in place. UserID always equals the owning note's UserID.
type Chunk struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	NoteID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"note_id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Index     int            `gorm:"column:index;not null" json:"index"`
	Text      string         `gorm:"column:text;not null" json:"text"`
	Embedding datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding"`
	Metadata  datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Chunk) TableName() string {
	return "chunk"
}

// ChunkMetadata is the persisted shape of Chunk.Metadata.
type ChunkMetadata struct {
	UserID       uuid.UUID `json:"user_id"`
	PageNumber   *int      `json:"page_number,omitempty"`
	SectionTitle string    `json:"section_title,omitempty"`
}
