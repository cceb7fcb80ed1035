package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/google/uuid"
)

// SQLiteBackupStore is append-only apart from Prune.
type SQLiteBackupStore struct {
	db *sql.DB
}

func NewSQLiteBackupStore(db *sql.DB) *SQLiteBackupStore {
	return &SQLiteBackupStore{db: db}
}

func (s *SQLiteBackupStore) Create(ctx context.Context, b *domain.Backup) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.Checksum = domain.Checksum(b.Content)
	b.Size = len(b.Content)

	content := b.Content
	if content == nil {
		content = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backups (id, target, content, checksum, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.Target, content, b.Checksum, b.Size, formatTime(b.CreatedAt),
	)
	return err
}

func (s *SQLiteBackupStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Backup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, target, content, checksum, size, created_at FROM backups WHERE id = ?`, id.String())
	return scanSQLiteBackup(row)
}

func (s *SQLiteBackupStore) Latest(ctx context.Context, target string) (*domain.Backup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, target, content, checksum, size, created_at FROM backups
		 WHERE target = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, target)
	return scanSQLiteBackup(row)
}

func (s *SQLiteBackupStore) List(ctx context.Context, target string) ([]domain.Backup, error) {
	query := `SELECT id, target, checksum, size, created_at FROM backups`
	var args []any
	if target != "" {
		query += ` WHERE target = ?`
		args = append(args, target)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var backups []domain.Backup
	for rows.Next() {
		var (
			b             domain.Backup
			id, createdAt string
		)
		if err := rows.Scan(&id, &b.Target, &b.Checksum, &b.Size, &createdAt); err != nil {
			return nil, err
		}
		if b.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if b.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

func (s *SQLiteBackupStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM backups
		 WHERE created_at < ?
		   AND id NOT IN (
			SELECT b.id FROM backups b
			WHERE b.created_at = (SELECT MAX(created_at) FROM backups WHERE target = b.target)
		 )`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSQLiteBackup(row *sql.Row) (*domain.Backup, error) {
	var (
		b             domain.Backup
		id, createdAt string
	)
	if err := row.Scan(&id, &b.Target, &b.Content, &b.Checksum, &b.Size, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var err error
	if b.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse backup id: %w", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &b, nil
}
