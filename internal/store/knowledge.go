package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// KnowledgeStore is the Postgres knowledge base. Embeddings live in a
// pgvector column.
type KnowledgeStore struct {
	db *pgxpool.Pool
}

func NewKnowledgeStore(db *pgxpool.Pool) *KnowledgeStore {
	return &KnowledgeStore{db: db}
}

func (s *KnowledgeStore) Get(ctx context.Context, key string) (*domain.KnowledgeItem, error) {
	item, err := scanKnowledge(s.db.QueryRow(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_items WHERE key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

func (s *KnowledgeStore) Put(ctx context.Context, items ...*domain.KnowledgeItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, item := range items {
		var embedding *pgvector.Vector
		if len(item.Embedding) > 0 {
			v := pgvector.NewVector(item.Embedding)
			embedding = &v
		}
		refs := item.SourceRefs
		if refs == nil {
			refs = []domain.SourceRef{}
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO knowledge_items (`+knowledgeColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (key) DO UPDATE SET
				statement = EXCLUDED.statement,
				confidence = EXCLUDED.confidence,
				status = EXCLUDED.status,
				source_refs = EXCLUDED.source_refs,
				merge_count = EXCLUDED.merge_count,
				merged_into = EXCLUDED.merged_into,
				embedding = EXCLUDED.embedding,
				updated_at = EXCLUDED.updated_at`,
			item.Key, item.Statement, item.Confidence, item.VerificationStatus, refs,
			item.MergeCount, item.MergedInto, embedding, item.CreatedAt, item.LastUpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert %q: %w", item.Key, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *KnowledgeStore) List(ctx context.Context, includeMerged bool) ([]domain.KnowledgeItem, error) {
	query := `SELECT ` + knowledgeColumns + ` FROM knowledge_items`
	if !includeMerged {
		query += ` WHERE merged_into = ''`
	}
	query += ` ORDER BY key`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectKnowledge(rows)
}

func (s *KnowledgeStore) Search(ctx context.Context, terms []string, limit int) ([]domain.KnowledgeItem, error) {
	if limit <= 0 {
		limit = 50
	}

	var conditions, hits []string
	var args []any
	for _, t := range terms {
		if t == "" {
			continue
		}
		args = append(args, "%"+escapeLike(t)+"%")
		conditions = append(conditions, fmt.Sprintf("statement ILIKE $%d", len(args)))
		hits = append(hits, fmt.Sprintf("(statement ILIKE $%d)::int", len(args)))
	}

	// Rows matching more terms come first so the limit never drops a close
	// match in favour of a confident one.
	query := `SELECT ` + knowledgeColumns + ` FROM knowledge_items WHERE merged_into = ''`
	order := `confidence DESC, key`
	if len(conditions) > 0 {
		query += ` AND (` + strings.Join(conditions, " OR ") + `)`
		order = `(` + strings.Join(hits, " + ") + `) DESC, ` + order
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY %s LIMIT $%d`, order, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectKnowledge(rows)
}

func (s *KnowledgeStore) DeleteMerged(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM knowledge_items WHERE merged_into != ''`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *KnowledgeStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanKnowledge(row pgx.Row) (*domain.KnowledgeItem, error) {
	var (
		item      domain.KnowledgeItem
		embedding *pgvector.Vector
	)
	if err := row.Scan(&item.Key, &item.Statement, &item.Confidence, &item.VerificationStatus, &item.SourceRefs,
		&item.MergeCount, &item.MergedInto, &embedding, &item.CreatedAt, &item.LastUpdatedAt); err != nil {
		return nil, err
	}
	if embedding != nil {
		item.Embedding = embedding.Slice()
	}
	return &item, nil
}

func collectKnowledge(rows pgx.Rows) ([]domain.KnowledgeItem, error) {
	var items []domain.KnowledgeItem
	for rows.Next() {
		item, err := scanKnowledge(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
