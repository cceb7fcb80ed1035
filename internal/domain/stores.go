package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type KnowledgeStore interface {
	Get(ctx context.Context, key string) (*KnowledgeItem, error)
	// Put upserts all items in a single durable transaction.
	Put(ctx context.Context, items ...*KnowledgeItem) error
	List(ctx context.Context, includeMerged bool) ([]KnowledgeItem, error)
	// Search returns active items containing any term, ordered by the number
	// of matched terms and then by confidence.
	Search(ctx context.Context, terms []string, limit int) ([]KnowledgeItem, error)
	DeleteMerged(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

type BackupStore interface {
	Create(ctx context.Context, b *Backup) error
	GetByID(ctx context.Context, id uuid.UUID) (*Backup, error)
	Latest(ctx context.Context, target string) (*Backup, error)
	// List returns backup metadata, newest first. An empty target lists all.
	List(ctx context.Context, target string) ([]Backup, error)
	// Prune removes backups created before cutoff, always keeping the newest per target.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

type ProposalStore interface {
	Create(ctx context.Context, p *ModificationProposal) error
	Update(ctx context.Context, p *ModificationProposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*ModificationProposal, error)
	// List returns proposals newest first. An empty status lists all.
	List(ctx context.Context, status ProposalStatus) ([]ModificationProposal, error)
	Outcomes(ctx context.Context, category string) (ProposalOutcomes, error)
	HasRejected(ctx context.Context, fingerprint string) (bool, error)
}

type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// SearchClient is an external search collaborator.
type SearchClient interface {
	Name() string
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
