package store

import (
	"context"
	"errors"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BackupStore struct {
	db *pgxpool.Pool
}

func NewBackupStore(db *pgxpool.Pool) *BackupStore {
	return &BackupStore{db: db}
}

func (s *BackupStore) Create(ctx context.Context, b *domain.Backup) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Checksum = domain.Checksum(b.Content)
	b.Size = len(b.Content)

	content := b.Content
	if content == nil {
		content = []byte{}
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO backups (id, target, content, checksum, size)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		b.ID, b.Target, content, b.Checksum, b.Size,
	).Scan(&b.CreatedAt)
}

func (s *BackupStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Backup, error) {
	return scanBackup(s.db.QueryRow(ctx,
		`SELECT id, target, content, checksum, size, created_at FROM backups WHERE id = $1`, id))
}

func (s *BackupStore) Latest(ctx context.Context, target string) (*domain.Backup, error) {
	return scanBackup(s.db.QueryRow(ctx,
		`SELECT id, target, content, checksum, size, created_at FROM backups
		 WHERE target = $1 ORDER BY created_at DESC LIMIT 1`, target))
}

func (s *BackupStore) List(ctx context.Context, target string) ([]domain.Backup, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, target, checksum, size, created_at FROM backups
		 WHERE $1 = '' OR target = $1
		 ORDER BY created_at DESC`,
		target,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var backups []domain.Backup
	for rows.Next() {
		var b domain.Backup
		if err := rows.Scan(&b.ID, &b.Target, &b.Checksum, &b.Size, &b.CreatedAt); err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

func (s *BackupStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM backups b
		 WHERE b.created_at < $1
		   AND b.created_at < (SELECT MAX(created_at) FROM backups WHERE target = b.target)`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanBackup(row pgx.Row) (*domain.Backup, error) {
	var b domain.Backup
	if err := row.Scan(&b.ID, &b.Target, &b.Content, &b.Checksum, &b.Size, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}
