package config

import "time"

// Settings is the explicit configuration handed to the core at construction.
type Settings struct {
	LearningEnabled        bool
	WebVerificationEnabled bool
	SelfImprovementEnabled bool
	AutoApplyProposals     bool

	VerificationThreshold float64
	LearningRate          float64
	RiskCeiling           float64
	SimilarityThreshold   float64
	MinSalience           float64

	ModifiableRoot string
	TuningFile     string

	ConsolidationInterval time.Duration
	ImprovementInterval   time.Duration
	MetricsWindow         time.Duration

	VerifierTimeout     time.Duration
	VerifierMinInterval time.Duration
	VerifierQueueDepth  int
	VerifierConcurrency int
	VerifierMaxRetries  int

	// OwnerToken guards the owner routes. Empty disables them.
	OwnerToken     string
	RateLimitRPS   float64
	RateLimitBurst int

	Policy Policy
}

// LoadSettings assembles Settings from the environment and the policy file.
func LoadSettings() (*Settings, error) {
	policy, err := LoadPolicy(PolicyFile())
	if err != nil {
		return nil, err
	}

	return &Settings{
		LearningEnabled:        boolEnv("LEARNING_ENABLED", true),
		WebVerificationEnabled: boolEnv("WEB_VERIFICATION_ENABLED", true),
		SelfImprovementEnabled: boolEnv("SELF_IMPROVEMENT_ENABLED", false),
		AutoApplyProposals:     boolEnv("AUTO_APPLY_PROPOSALS", false),

		VerificationThreshold: unitEnv("VERIFICATION_THRESHOLD", 0.8),
		LearningRate:          unitEnv("LEARNING_RATE", 0.1),
		RiskCeiling:           unitEnv("RISK_CEILING", 0.6),
		SimilarityThreshold:   unitEnv("SIMILARITY_THRESHOLD", 0.85),
		MinSalience:           unitEnv("MIN_SALIENCE", 0.4),

		ModifiableRoot: ModifiableRoot(),
		TuningFile:     TuningFile(),

		ConsolidationInterval: durationEnv("CONSOLIDATION_INTERVAL", 5*time.Minute),
		ImprovementInterval:   durationEnv("IMPROVEMENT_INTERVAL", 6*time.Hour),
		MetricsWindow:         durationEnv("METRICS_WINDOW", time.Hour),

		VerifierTimeout:     durationEnv("VERIFIER_TIMEOUT", 10*time.Second),
		VerifierMinInterval: durationEnv("VERIFIER_MIN_INTERVAL", time.Second),
		VerifierQueueDepth:  intEnv("VERIFIER_QUEUE_DEPTH", 16),
		VerifierConcurrency: intEnv("VERIFIER_CONCURRENCY", 4),
		VerifierMaxRetries:  intEnv("VERIFIER_MAX_RETRIES", 3),

		OwnerToken:     OwnerToken(),
		RateLimitRPS:   RateLimitRPS(),
		RateLimitBurst: RateLimitBurst(),

		Policy: policy,
	}, nil
}

// ApplyTuning overrides the knobs the self-improvement engine manages with
// the values from the tuning file.
func (s *Settings) ApplyTuning(t Tuning) {
	s.MinSalience = t.MinSalience
	s.VerifierTimeout = time.Duration(t.VerifierTimeoutSeconds) * time.Second
	s.VerifierConcurrency = t.VerifierConcurrency
}
