package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

const knowledgeColumns = `key, statement, confidence, status, source_refs, merge_count, merged_into, embedding, created_at, updated_at`

type SQLiteKnowledgeStore struct {
	db *sql.DB
}

func NewSQLiteKnowledgeStore(db *sql.DB) *SQLiteKnowledgeStore {
	return &SQLiteKnowledgeStore{db: db}
}

func (s *SQLiteKnowledgeStore) Get(ctx context.Context, key string) (*domain.KnowledgeItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_items WHERE key = ?`, key)
	item, err := scanSQLiteKnowledge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

func (s *SQLiteKnowledgeStore) Put(ctx context.Context, items ...*domain.KnowledgeItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range items {
		refs, err := json.Marshal(item.SourceRefs)
		if err != nil {
			return fmt.Errorf("marshal source refs: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO knowledge_items (`+knowledgeColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET
				statement = excluded.statement,
				confidence = excluded.confidence,
				status = excluded.status,
				source_refs = excluded.source_refs,
				merge_count = excluded.merge_count,
				merged_into = excluded.merged_into,
				embedding = excluded.embedding,
				updated_at = excluded.updated_at`,
			item.Key, item.Statement, item.Confidence, string(item.VerificationStatus), string(refs),
			item.MergeCount, item.MergedInto, encodeVector(item.Embedding),
			formatTime(item.CreatedAt), formatTime(item.LastUpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert %q: %w", item.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteKnowledgeStore) List(ctx context.Context, includeMerged bool) ([]domain.KnowledgeItem, error) {
	query := `SELECT ` + knowledgeColumns + ` FROM knowledge_items`
	if !includeMerged {
		query += ` WHERE merged_into = ''`
	}
	query += ` ORDER BY key`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectSQLiteKnowledge(rows)
}

func (s *SQLiteKnowledgeStore) Search(ctx context.Context, terms []string, limit int) ([]domain.KnowledgeItem, error) {
	if limit <= 0 {
		limit = 50
	}

	var conditions []string
	var patterns []any
	for _, t := range terms {
		if t == "" {
			continue
		}
		conditions = append(conditions, `(statement LIKE ? ESCAPE '\')`)
		patterns = append(patterns, "%"+escapeLike(t)+"%")
	}

	// Rows matching more terms come first so the limit never drops a close
	// match in favour of a confident one.
	query := `SELECT ` + knowledgeColumns + ` FROM knowledge_items WHERE merged_into = ''`
	var args []any
	if len(conditions) > 0 {
		query += ` AND (` + strings.Join(conditions, " OR ") + `)`
		query += ` ORDER BY (` + strings.Join(conditions, " + ") + `) DESC, confidence DESC, key LIMIT ?`
		args = append(args, patterns...)
		args = append(args, patterns...)
	} else {
		query += ` ORDER BY confidence DESC, key LIMIT ?`
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectSQLiteKnowledge(rows)
}

func (s *SQLiteKnowledgeStore) DeleteMerged(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_items WHERE merged_into != ''`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteKnowledgeStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteKnowledge(row rowScanner) (*domain.KnowledgeItem, error) {
	var (
		item                 domain.KnowledgeItem
		status, refs         string
		embedding            []byte
		createdAt, updatedAt string
	)
	if err := row.Scan(&item.Key, &item.Statement, &item.Confidence, &status, &refs,
		&item.MergeCount, &item.MergedInto, &embedding, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	item.VerificationStatus = domain.VerificationStatus(status)
	if err := json.Unmarshal([]byte(refs), &item.SourceRefs); err != nil {
		return nil, fmt.Errorf("decode source refs for %q: %w", item.Key, err)
	}
	item.Embedding = decodeVector(embedding)

	var err error
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if item.LastUpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

func collectSQLiteKnowledge(rows *sql.Rows) ([]domain.KnowledgeItem, error) {
	var items []domain.KnowledgeItem
	for rows.Next() {
		item, err := scanSQLiteKnowledge(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
