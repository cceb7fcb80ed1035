package domain

import "time"

type VerificationStatus string

const (
	StatusUnverified          VerificationStatus = "unverified"
	StatusPendingVerification VerificationStatus = "pending_verification"
	StatusVerified            VerificationStatus = "verified"
	StatusRejected            VerificationStatus = "rejected"
)

func ValidVerificationStatus(s string) bool {
	switch VerificationStatus(s) {
	case StatusUnverified, StatusPendingVerification, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// SourceRef is a piece of external evidence attached to a knowledge item.
type SourceRef struct {
	URL        string    `json:"url"`
	TrustScore float64   `json:"trust_score"`
	FetchedAt  time.Time `json:"fetched_at"`
}

type KnowledgeItem struct {
	Key                string             `json:"key"`
	Statement          string             `json:"statement"`
	Confidence         float64            `json:"confidence"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	SourceRefs         []SourceRef        `json:"source_refs"`
	MergeCount         int                `json:"merge_count"`
	MergedInto         string             `json:"merged_into,omitempty"`
	Embedding          []float32          `json:"-"`
	CreatedAt          time.Time          `json:"created_at"`
	LastUpdatedAt      time.Time          `json:"last_updated_at"`
}

// Active reports whether the item has not been folded into another item.
func (k *KnowledgeItem) Active() bool {
	return k.MergedInto == ""
}

// MaxTrust returns the highest trust score among the item's source refs.
func (k *KnowledgeItem) MaxTrust() float64 {
	var best float64
	for _, ref := range k.SourceRefs {
		if ref.TrustScore > best {
			best = ref.TrustScore
		}
	}
	return best
}

// TrustMass is the sum of source trust scores, used as the merge weight.
func (k *KnowledgeItem) TrustMass() float64 {
	var sum float64
	for _, ref := range k.SourceRefs {
		sum += ref.TrustScore
	}
	return sum
}

// Clone returns a deep copy.
func (k *KnowledgeItem) Clone() *KnowledgeItem {
	c := *k
	c.SourceRefs = append([]SourceRef(nil), k.SourceRefs...)
	c.Embedding = append([]float32(nil), k.Embedding...)
	return &c
}

type Verdict string

const (
	VerdictConfirmed    Verdict = "confirmed"
	VerdictContradicted Verdict = "contradicted"
	VerdictInconclusive Verdict = "inconclusive"
)

// VerificationVerdict is the transient outcome of checking a claim against
// external evidence. It is never persisted.
type VerificationVerdict struct {
	Claim          string      `json:"claim"`
	Verdict        Verdict     `json:"verdict"`
	Evidence       []SourceRef `json:"evidence"`
	AggregateTrust float64     `json:"aggregate_trust"`
	Agreement      float64     `json:"agreement"`
	Disagreement   float64     `json:"disagreement"`
	Responders     int         `json:"responders"`
	MissingVotes   int         `json:"missing_votes"`
}

type KnowledgeStats struct {
	Total             int                        `json:"total"`
	ByStatus          map[VerificationStatus]int `json:"by_status"`
	ByBand            map[ConfidenceBand]int     `json:"by_band"`
	AverageConfidence float64                    `json:"average_confidence"`
	Tombstones        int                        `json:"tombstones"`
}

// KnowledgeExport is the transfer format for the knowledge base.
type KnowledgeExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	TotalItems int             `json:"total_items"`
	Items      []KnowledgeItem `json:"items"`
}

type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

type ConsolidationResult struct {
	Examined int                  `json:"examined"`
	Merged   int                  `json:"merged"`
	Merges   []ConsolidationMerge `json:"merges,omitempty"`
}

type ConsolidationMerge struct {
	SourceKey string  `json:"source_key"`
	TargetKey string  `json:"target_key"`
	Score     float64 `json:"score"`
}
