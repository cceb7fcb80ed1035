package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/google/uuid"
)

const proposalColumns = `id, target, diff, rationale, category, risk_score, status, reason, backup_id, baseline, created_at, updated_at, applied_at`

type SQLiteProposalStore struct {
	db *sql.DB
}

func NewSQLiteProposalStore(db *sql.DB) *SQLiteProposalStore {
	return &SQLiteProposalStore{db: db}
}

func (s *SQLiteProposalStore) Create(ctx context.Context, p *domain.ModificationProposal) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	baseline, backupID, err := proposalExtras(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO proposals (`+proposalColumns+`, fingerprint)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.TargetLocation, p.Diff, p.Rationale, p.Category, p.RiskScore,
		string(p.Status), p.Reason, backupID, baseline,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt), nullTime(p.AppliedAt), p.Fingerprint(),
	)
	return err
}

func (s *SQLiteProposalStore) Update(ctx context.Context, p *domain.ModificationProposal) error {
	p.UpdatedAt = time.Now().UTC()

	baseline, backupID, err := proposalExtras(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE proposals SET risk_score = ?, status = ?, reason = ?, backup_id = ?, baseline = ?,
			updated_at = ?, applied_at = ?
		 WHERE id = ?`,
		p.RiskScore, string(p.Status), p.Reason, backupID, baseline,
		formatTime(p.UpdatedAt), nullTime(p.AppliedAt), p.ID.String(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteProposalStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ModificationProposal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id.String())
	p, err := scanSQLiteProposal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *SQLiteProposalStore) List(ctx context.Context, status domain.ProposalStatus) ([]domain.ModificationProposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ModificationProposal
	for rows.Next() {
		p, err := scanSQLiteProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLiteProposalStore) Outcomes(ctx context.Context, category string) (domain.ProposalOutcomes, error) {
	var o domain.ProposalOutcomes
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		 FROM proposals WHERE category = ?`,
		string(domain.ProposalApplied), string(domain.ProposalRolledBack), string(domain.ProposalRejected), category,
	).Scan(&o.Applied, &o.RolledBack, &o.Rejected)
	return o, err
}

func (s *SQLiteProposalStore) HasRejected(ctx context.Context, fingerprint string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM proposals WHERE fingerprint = ? AND status = ?`,
		fingerprint, string(domain.ProposalRejected),
	).Scan(&n)
	return n > 0, err
}

func proposalExtras(p *domain.ModificationProposal) (baseline, backupID sql.NullString, err error) {
	if p.Baseline != nil {
		raw, err := json.Marshal(p.Baseline)
		if err != nil {
			return baseline, backupID, fmt.Errorf("marshal baseline: %w", err)
		}
		baseline = sql.NullString{String: string(raw), Valid: true}
	}
	if p.BackupID != nil {
		backupID = sql.NullString{String: p.BackupID.String(), Valid: true}
	}
	return baseline, backupID, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func scanSQLiteProposal(row rowScanner) (*domain.ModificationProposal, error) {
	var (
		p                    domain.ModificationProposal
		id, status           string
		backupID, baseline   sql.NullString
		appliedAt            sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&id, &p.TargetLocation, &p.Diff, &p.Rationale, &p.Category, &p.RiskScore,
		&status, &p.Reason, &backupID, &baseline, &createdAt, &updatedAt, &appliedAt); err != nil {
		return nil, err
	}

	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse proposal id: %w", err)
	}
	p.Status = domain.ProposalStatus(status)
	if backupID.Valid {
		bid, err := uuid.Parse(backupID.String)
		if err != nil {
			return nil, fmt.Errorf("parse backup id: %w", err)
		}
		p.BackupID = &bid
	}
	if baseline.Valid {
		var m domain.Metrics
		if err := json.Unmarshal([]byte(baseline.String), &m); err != nil {
			return nil, fmt.Errorf("decode baseline: %w", err)
		}
		p.Baseline = &m
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if p.AppliedAt, err = parseNullTime(appliedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
