package domain

import "testing"

func TestComputeBand(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       ConfidenceBand
	}{
		{"certain - 0.99", 0.99, BandCertain},
		{"certain boundary - 0.851", 0.851, BandCertain},
		{"likely - 0.85", 0.85, BandLikely},
		{"likely boundary - 0.701", 0.701, BandLikely},
		{"uncertain - 0.70", 0.70, BandUncertain},
		{"uncertain - 0.50", 0.50, BandUncertain},
		{"doubtful - 0.40", 0.40, BandDoubtful},
		{"doubtful - 0.0", 0.0, BandDoubtful},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeBand(tt.confidence)
			if got != tt.want {
				t.Errorf("ComputeBand(%v) = %v, want %v", tt.confidence, got, tt.want)
			}
		})
	}
}

func TestBandReason(t *testing.T) {
	for _, c := range []float64{0.9, 0.75, 0.5, 0.3} {
		if BandReason(c) == "" {
			t.Errorf("BandReason(%v) returned empty string", c)
		}
	}
}

func TestValidBand(t *testing.T) {
	for _, b := range []string{"certain", "likely", "uncertain", "doubtful"} {
		if !ValidBand(b) {
			t.Errorf("ValidBand(%q) = false, want true", b)
		}
	}
	for _, b := range []string{"", "unknown", "Certain"} {
		if ValidBand(b) {
			t.Errorf("ValidBand(%q) = true, want false", b)
		}
	}
}

func TestBandMinConfidence(t *testing.T) {
	if got := BandLikely.MinConfidence(); got != 0.70 {
		t.Errorf("likely min confidence = %v, want 0.70", got)
	}
	if got := ConfidenceBand("bogus").MinConfidence(); got != 0 {
		t.Errorf("unknown band min confidence = %v, want 0", got)
	}
}

func TestKnowledgeItemTrust(t *testing.T) {
	item := &KnowledgeItem{SourceRefs: []SourceRef{
		{URL: "https://a.example", TrustScore: 0.4},
		{URL: "https://b.example", TrustScore: 0.9},
	}}
	if item.MaxTrust() != 0.9 {
		t.Errorf("MaxTrust() = %v, want 0.9", item.MaxTrust())
	}
	if mass := item.TrustMass(); mass < 1.29 || mass > 1.31 {
		t.Errorf("TrustMass() = %v, want 1.3", mass)
	}

	clone := item.Clone()
	clone.SourceRefs[0].TrustScore = 0
	if item.SourceRefs[0].TrustScore != 0.4 {
		t.Error("Clone should not share source refs")
	}
}
