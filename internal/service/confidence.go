package service

import (
	"math"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

const (
	DefaultMaxConfidence = 0.99
	DefaultMinConfidence = 0.01
)

func Logit(p float64) float64 {
	p = clampConfidence(p)
	return math.Log(p / (1 - p))
}

func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func ApplyLogOddsDelta(confidence float64, logOddsDelta float64) float64 {
	logOdds := Logit(confidence)
	newLogOdds := logOdds + logOddsDelta
	return clampConfidence(Sigmoid(newLogOdds))
}

func clampConfidence(p float64) float64 {
	if p < DefaultMinConfidence {
		return DefaultMinConfidence
	}
	if p > DefaultMaxConfidence {
		return DefaultMaxConfidence
	}
	return p
}

// MergeConfidence recombines an existing confidence with an incoming one,
// weighting each side by the trust mass of its evidence. With no trust on
// either side it falls back to the plain mean. The result always lies
// between the two inputs.
func MergeConfidence(existing, existingWeight, incoming, incomingWeight float64) float64 {
	if existingWeight < 0 {
		existingWeight = 0
	}
	if incomingWeight < 0 {
		incomingWeight = 0
	}
	total := existingWeight + incomingWeight
	if total == 0 {
		return (existing + incoming) / 2
	}
	merged := (existing*existingWeight + incoming*incomingWeight) / total

	lo, hi := math.Min(existing, incoming), math.Max(existing, incoming)
	return math.Max(lo, math.Min(hi, merged))
}

// VerdictConfidence maps a verdict onto the confidence it supports.
func VerdictConfidence(v *domain.VerificationVerdict) float64 {
	switch v.Verdict {
	case domain.VerdictConfirmed:
		return math.Max(v.Agreement, v.AggregateTrust)
	case domain.VerdictContradicted:
		return clampConfidence(1 - math.Max(v.Disagreement, v.AggregateTrust))
	default:
		return v.AggregateTrust
	}
}
