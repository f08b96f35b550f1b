package notes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-notes/inkwell-backend/internal/domain"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
)

type ChunkRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chunks []*domain.Chunk) ([]*domain.Chunk, error)
	GetByNoteID(ctx context.Context, tx *gorm.DB, noteID uuid.UUID) ([]*domain.Chunk, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Chunk, error)
	IDsByNoteID(ctx context.Context, tx *gorm.DB, noteID uuid.UUID) ([]uuid.UUID, error)
	DeleteByNoteID(ctx context.Context, tx *gorm.DB, noteID uuid.UUID) error
	CountByNoteID(ctx context.Context, tx *gorm.DB, noteID uuid.UUID) (int64, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*domain.Chunk) ([]*domain.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return []*domain.Chunk{}, nil
	}

	// Keep batches small because Text is large
	const batchSize = 100

	if err := transaction.WithContext(ctx).CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkRepo) GetByNoteID(ctx context.Context, tx *gorm.DB, noteID uuid.UUID) ([]*domain.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Chunk
	if err := transaction.WithContext(ctx).
		Where("note_id = ?", noteID).
		Order("index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Chunk
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) IDsByNoteID(ctx context.Context, tx *gorm.DB, noteID uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&domain.Chunk{}).
		Where("note_id = ?", noteID).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *chunkRepo) DeleteByNoteID(ctx context.Context, tx *gorm.DB, noteID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("note_id = ?", noteID).
		Delete(&domain.Chunk{}).Error
}

func (r *chunkRepo) CountByNoteID(ctx context.Context, tx *gorm.DB, noteID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&domain.Chunk{}).
		Where("note_id = ?", noteID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
