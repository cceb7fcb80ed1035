package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

type ProposalStatus string

const (
	ProposalProposed   ProposalStatus = "proposed"
	ProposalValidated  ProposalStatus = "validated"
	ProposalApplied    ProposalStatus = "applied"
	ProposalRolledBack ProposalStatus = "rolled_back"
	ProposalRejected   ProposalStatus = "rejected"
)

var proposalTransitions = map[ProposalStatus][]ProposalStatus{
	ProposalProposed:  {ProposalValidated, ProposalRejected},
	ProposalValidated: {ProposalApplied, ProposalRejected},
	ProposalApplied:   {ProposalRolledBack},
}

// CanTransition reports whether a proposal may move from one status to another.
func (s ProposalStatus) CanTransition(to ProposalStatus) bool {
	for _, next := range proposalTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no automatic transition leaves this status.
// Applied is terminal for the pipeline; only an explicit rollback moves it.
func (s ProposalStatus) Terminal() bool {
	switch s {
	case ProposalApplied, ProposalRolledBack, ProposalRejected:
		return true
	}
	return false
}

type ModificationProposal struct {
	ID             uuid.UUID      `json:"id"`
	TargetLocation string         `json:"target_location"`
	Diff           string         `json:"diff"`
	Rationale      string         `json:"rationale"`
	Category       string         `json:"category"`
	RiskScore      float64        `json:"risk_score"`
	Status         ProposalStatus `json:"status"`
	Reason         string         `json:"reason,omitempty"`
	BackupID       *uuid.UUID     `json:"backup_id,omitempty"`
	Baseline       *Metrics       `json:"baseline,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	AppliedAt      *time.Time     `json:"applied_at,omitempty"`
}

// Fingerprint identifies proposals that would make the same change.
func (p *ModificationProposal) Fingerprint() string {
	return ProposalFingerprint(p.TargetLocation, p.Diff)
}

func ProposalFingerprint(target, diff string) string {
	h := sha256.Sum256([]byte(target + "\x00" + diff))
	return hex.EncodeToString(h[:])
}

// ProposalOutcomes counts how proposals of one category ended.
type ProposalOutcomes struct {
	Applied    int `json:"applied"`
	RolledBack int `json:"rolled_back"`
	Rejected   int `json:"rejected"`
}

// Backup is a snapshot of a modification target taken before it changes.
type Backup struct {
	ID        uuid.UUID `json:"id"`
	Target    string    `json:"target"`
	Content   []byte    `json:"-"`
	Checksum  string    `json:"checksum"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func Checksum(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

type ValidationReport struct {
	Target     string      `json:"target"`
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// Reject records a violation and marks the report invalid.
func (r *ValidationReport) Reject(rule, msg string) {
	r.Valid = false
	r.Violations = append(r.Violations, Violation{Rule: rule, Message: msg})
}

type ApplyResult struct {
	ProposalID uuid.UUID `json:"proposal_id"`
	Target     string    `json:"target"`
	BackupID   uuid.UUID `json:"backup_id"`
	Checksum   string    `json:"checksum"`
	AppliedAt  time.Time `json:"applied_at"`
}
