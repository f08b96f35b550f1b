package notes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-notes/inkwell-backend/internal/domain"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
)

var ErrNotFound = errors.New("note not found")

type NoteRepo interface {
	Create(ctx context.Context, tx *gorm.DB, n *domain.Note) (*domain.Note, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Note, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*domain.Note, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type noteRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNoteRepo(db *gorm.DB, baseLog *logger.Logger) NoteRepo {
	return &noteRepo{db: db, log: baseLog.With("repo", "NoteRepo")}
}

func (r *noteRepo) Create(ctx context.Context, tx *gorm.DB, n *domain.Note) (*domain.Note, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

func (r *noteRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Note, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n domain.Note
	if err := transaction.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *noteRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*domain.Note, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Note
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *noteRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Model(&domain.Note{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *noteRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Where("id = ?", id).Delete(&domain.Note{}).Error
}
