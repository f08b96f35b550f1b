package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/inkwell-notes/inkwell-backend/internal/domain"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/envutil"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	host := envutil.Str("POSTGRES_HOST", "localhost")
	port := envutil.Str("POSTGRES_PORT", "5432")
	user := envutil.Str("POSTGRES_USER", "postgres")
	password := envutil.Str("POSTGRES_PASSWORD", "")
	name := envutil.Str("POSTGRES_NAME", "inkwell")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	serviceLog.Info("Connecting to Postgres...", "host", host, "database", name)
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := s.db.AutoMigrate(
		&domain.User{},
		&domain.Note{},
		&domain.Chunk{},
	); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}

	// Deleting a note must cascade its derived chunks at the database level
	// too, so no orphan rows survive a crash between the two deletes.
	constraints := []struct {
		name string
		stmt string
	}{
		{
			name: "fk_note_user_id",
			stmt: `ALTER TABLE "note" ADD CONSTRAINT "fk_note_user_id" FOREIGN KEY ("user_id") REFERENCES "user"("id") ON DELETE CASCADE`,
		},
		{
			name: "fk_chunk_note_id",
			stmt: `ALTER TABLE "chunk" ADD CONSTRAINT "fk_chunk_note_id" FOREIGN KEY ("note_id") REFERENCES "note"("id") ON DELETE CASCADE`,
		},
		{
			name: "fk_chunk_user_id",
			stmt: `ALTER TABLE "chunk" ADD CONSTRAINT "fk_chunk_user_id" FOREIGN KEY ("user_id") REFERENCES "user"("id") ON DELETE CASCADE`,
		},
	}
	for _, c := range constraints {
		var exists bool
		if err := s.db.Raw(
			`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`, c.name,
		).Scan(&exists).Error; err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := s.db.Exec(c.stmt).Error; err != nil {
			s.log.Error("Failed to add constraint", "constraint", c.name, "error", err)
			return err
		}
	}
	return nil
}
