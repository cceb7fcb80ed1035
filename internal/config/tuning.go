package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tuning holds the runtime knobs the self-improvement engine may rewrite.
// It lives in a YAML file under the modifiable root and is read at startup and again whenever the code modifier rewrites it.
type Tuning struct {
	SearchMaxResults       int     `yaml:"search_max_results"`
	VerifierTimeoutSeconds int     `yaml:"verifier_timeout_seconds"`
	MinSalience            float64 `yaml:"min_salience"`
	VerifierConcurrency    int     `yaml:"verifier_concurrency"`
}

// Tuning file keys.
const (
	KeySearchMaxResults       = "search_max_results"
	KeyVerifierTimeoutSeconds = "verifier_timeout_seconds"
	KeyMinSalience            = "min_salience"
	KeyVerifierConcurrency    = "verifier_concurrency"
)

func DefaultTuning() Tuning {
	return Tuning{
		SearchMaxResults:       5,
		VerifierTimeoutSeconds: 10,
		MinSalience:            0.4,
		VerifierConcurrency:    4,
	}
}

// ParseTuning decodes a tuning document. Missing or non-positive values
// take the defaults.
func ParseTuning(raw []byte) (Tuning, error) {
	var t Tuning
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning: %w", err)
	}
	def := DefaultTuning()
	if t.SearchMaxResults <= 0 {
		t.SearchMaxResults = def.SearchMaxResults
	}
	if t.VerifierTimeoutSeconds <= 0 {
		t.VerifierTimeoutSeconds = def.VerifierTimeoutSeconds
	}
	if t.MinSalience <= 0 || t.MinSalience > 1 {
		t.MinSalience = def.MinSalience
	}
	if t.VerifierConcurrency <= 0 {
		t.VerifierConcurrency = def.VerifierConcurrency
	}
	return t, nil
}

// LoadTuning reads the tuning file, writing the defaults first when it does
// not exist yet.
func LoadTuning(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		def := DefaultTuning()
		out, err := yaml.Marshal(def)
		if err != nil {
			return Tuning{}, err
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return Tuning{}, fmt.Errorf("write default tuning: %w", err)
		}
		return def, nil
	}
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning: %w", err)
	}
	return ParseTuning(raw)
}

// SetTuningValue rewrites the plain scalar stored under a top-level key and
// leaves every other byte of the document as it was.
func SetTuningValue(doc []byte, key, value string) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("parse tuning: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("tuning document is not a mapping")
	}

	m := root.Content[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if k.Value != key {
			continue
		}
		if v.Kind != yaml.ScalarNode || v.Style != 0 {
			return nil, fmt.Errorf("tuning key %q is not a plain scalar", key)
		}
		lines := strings.SplitAfter(string(doc), "\n")
		idx, col := v.Line-1, v.Column-1
		if idx >= len(lines) || col+len(v.Value) > len(lines[idx]) || lines[idx][col:col+len(v.Value)] != v.Value {
			return nil, fmt.Errorf("tuning key %q: value position not found", key)
		}
		lines[idx] = lines[idx][:col] + value + lines[idx][col+len(v.Value):]
		return []byte(strings.Join(lines, "")), nil
	}
	return nil, fmt.Errorf("tuning key %q not found", key)
}
