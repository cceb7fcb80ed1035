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

type ProposalStore struct {
	db *pgxpool.Pool
}

func NewProposalStore(db *pgxpool.Pool) *ProposalStore {
	return &ProposalStore{db: db}
}

func (s *ProposalStore) Create(ctx context.Context, p *domain.ModificationProposal) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO proposals (id, target, diff, rationale, category, risk_score, status, reason, fingerprint, backup_id, baseline, applied_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at, updated_at`,
		p.ID, p.TargetLocation, p.Diff, p.Rationale, p.Category, p.RiskScore, p.Status, p.Reason,
		p.Fingerprint(), p.BackupID, p.Baseline, p.AppliedAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (s *ProposalStore) Update(ctx context.Context, p *domain.ModificationProposal) error {
	err := s.db.QueryRow(ctx,
		`UPDATE proposals SET risk_score = $2, status = $3, reason = $4, backup_id = $5, baseline = $6,
			applied_at = $7, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		p.ID, p.RiskScore, p.Status, p.Reason, p.BackupID, p.Baseline, p.AppliedAt,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *ProposalStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ModificationProposal, error) {
	p, err := scanProposal(s.db.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *ProposalStore) List(ctx context.Context, status domain.ProposalStatus) ([]domain.ModificationProposal, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+proposalColumns+` FROM proposals
		 WHERE $1 = '' OR status = $1
		 ORDER BY created_at DESC`,
		string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ModificationProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *ProposalStore) Outcomes(ctx context.Context, category string) (domain.ProposalOutcomes, error) {
	var o domain.ProposalOutcomes
	err := s.db.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE status = 'applied'),
			COUNT(*) FILTER (WHERE status = 'rolled_back'),
			COUNT(*) FILTER (WHERE status = 'rejected')
		 FROM proposals WHERE category = $1`,
		category,
	).Scan(&o.Applied, &o.RolledBack, &o.Rejected)
	return o, err
}

func (s *ProposalStore) HasRejected(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM proposals WHERE fingerprint = $1 AND status = 'rejected')`,
		fingerprint,
	).Scan(&exists)
	return exists, err
}

func scanProposal(row pgx.Row) (*domain.ModificationProposal, error) {
	var (
		p         domain.ModificationProposal
		appliedAt *time.Time
	)
	if err := row.Scan(&p.ID, &p.TargetLocation, &p.Diff, &p.Rationale, &p.Category, &p.RiskScore,
		&p.Status, &p.Reason, &p.BackupID, &p.Baseline, &p.CreatedAt, &p.UpdatedAt, &appliedAt); err != nil {
		return nil, err
	}
	p.AppliedAt = appliedAt
	return &p, nil
}
