package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Policy holds the trust and safety tables. It is loaded from a YAML file
// and falls back to DefaultPolicy for any table the file leaves empty.
type Policy struct {
	TrustedDomains     map[string]float64 `yaml:"trusted_domains"`
	DistrustedDomains  map[string]float64 `yaml:"distrusted_domains"`
	SuspiciousKeywords []string           `yaml:"suspicious_keywords"`
	NeutralTrust       float64            `yaml:"neutral_trust"`
	UnsafePatterns     []string           `yaml:"unsafe_patterns"`
	ProtectedPaths     []string           `yaml:"protected_paths"`
}

func DefaultPolicy() Policy {
	return Policy{
		TrustedDomains: map[string]float64{
			"wikipedia.org":  0.9,
			"britannica.com": 0.9,
			"nasa.gov":       0.95,
			"nih.gov":        0.95,
			"who.int":        0.9,
			"cdc.gov":        0.9,
			"edu":            0.8,
			"gov":            0.8,
			"org":            0.6,
		},
		DistrustedDomains: map[string]float64{
			"blogspot.com": 0.3,
			"fandom.com":   0.35,
		},
		SuspiciousKeywords: []string{"click", "spam", "fake", "ads"},
		NeutralTrust:       0.5,
		UnsafePatterns: []string{
			`\beval\s*\(`,
			`\bexec\s*\(`,
			`__import__`,
			`subprocess`,
			`os\.system`,
			`exec\.Command`,
			`os\.RemoveAll`,
			`rm\s+-rf`,
			`(?i)(safety|validation)_?checks?\s*[:=]\s*(false|off|0)`,
			`(?i)verification_enabled\s*[:=]\s*(false|off|0)`,
			`(?i)max_recursion\s*[:=]\s*-1`,
		},
		ProtectedPaths: []string{
			".env",
			".env.*",
			"*.secret",
			"*.pem",
			"*.key",
			"id_rsa*",
			"credentials*",
			"*/credentials*",
			"secrets/*",
		},
	}
}

// LoadPolicy reads a policy file. An empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	def := DefaultPolicy()
	if path == "" {
		return def, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}

	if len(p.TrustedDomains) == 0 {
		p.TrustedDomains = def.TrustedDomains
	}
	if p.DistrustedDomains == nil {
		p.DistrustedDomains = def.DistrustedDomains
	}
	if p.SuspiciousKeywords == nil {
		p.SuspiciousKeywords = def.SuspiciousKeywords
	}
	if p.NeutralTrust <= 0 || p.NeutralTrust > 1 {
		p.NeutralTrust = def.NeutralTrust
	}
	if len(p.UnsafePatterns) == 0 {
		p.UnsafePatterns = def.UnsafePatterns
	}
	if len(p.ProtectedPaths) == 0 {
		p.ProtectedPaths = def.ProtectedPaths
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks scores are in range and patterns compile.
func (p Policy) Validate() error {
	for d, s := range p.TrustedDomains {
		if s < 0 || s > 1 {
			return fmt.Errorf("trusted domain %q: score %v outside [0,1]", d, s)
		}
	}
	for d, s := range p.DistrustedDomains {
		if s < 0 || s > 1 {
			return fmt.Errorf("distrusted domain %q: score %v outside [0,1]", d, s)
		}
	}
	for _, pat := range p.UnsafePatterns {
		if _, err := regexp.Compile(pat); err != nil {
			return fmt.Errorf("unsafe pattern %q: %w", pat, err)
		}
	}
	return nil
}
