package domain

// ConfidenceBand buckets knowledge confidence for reporting and query filtering.
type ConfidenceBand string

const (
	BandCertain   ConfidenceBand = "certain"
	BandLikely    ConfidenceBand = "likely"
	BandUncertain ConfidenceBand = "uncertain"
	BandDoubtful  ConfidenceBand = "doubtful"
)

func ComputeBand(confidence float64) ConfidenceBand {
	switch {
	case confidence > 0.85:
		return BandCertain
	case confidence > 0.70:
		return BandLikely
	case confidence > 0.40:
		return BandUncertain
	default:
		return BandDoubtful
	}
}

var BandConfidenceThresholds = map[ConfidenceBand]struct{ Min, Max float64 }{
	BandCertain:   {Min: 0.85, Max: 1.0},
	BandLikely:    {Min: 0.70, Max: 0.85},
	BandUncertain: {Min: 0.40, Max: 0.70},
	BandDoubtful:  {Min: 0.0, Max: 0.40},
}

func BandReason(confidence float64) string {
	switch ComputeBand(confidence) {
	case BandCertain:
		return "confidence > 0.85"
	case BandLikely:
		return "0.70 < confidence <= 0.85"
	case BandUncertain:
		return "0.40 < confidence <= 0.70"
	default:
		return "confidence <= 0.40"
	}
}

func AllBands() []ConfidenceBand {
	return []ConfidenceBand{BandCertain, BandLikely, BandUncertain, BandDoubtful}
}

func ValidBand(b string) bool {
	switch ConfidenceBand(b) {
	case BandCertain, BandLikely, BandUncertain, BandDoubtful:
		return true
	}
	return false
}

// MinConfidence returns the lowest confidence admitted by the band.
func (b ConfidenceBand) MinConfidence() float64 {
	if t, ok := BandConfidenceThresholds[b]; ok {
		return t.Min
	}
	return 0
}
