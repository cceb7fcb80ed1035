// Package patch produces and applies the text diffs carried by modification
// proposals. Diffs use the diff-match-patch patch text format.
package patch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var (
	ErrMalformed  = errors.New("malformed diff")
	ErrEmpty      = errors.New("empty diff")
	ErrHunkFailed = errors.New("diff does not apply at its recorded offset")
)

// Stats summarises the change a diff makes to a text.
type Stats struct {
	Hunks    int `json:"hunks"`
	Inserted int `json:"inserted"`
	Deleted  int `json:"deleted"`
	// Base is the length of the original text.
	Base int `json:"base"`
}

// Scope is the share of the original text touched by the change, capped at 1.
func (s Stats) Scope() float64 {
	changed := float64(s.Inserted + s.Deleted)
	if s.Base == 0 {
		if changed == 0 {
			return 0
		}
		return 1
	}
	scope := changed / float64(s.Base)
	if scope > 1 {
		return 1
	}
	return scope
}

// newDMP returns a matcher that applies a hunk only where its context sits
// verbatim at the recorded offset. A diff drafted against other content
// fails instead of landing somewhere nearby.
func newDMP() *diffmatchpatch.DiffMatchPatch {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	dmp.MatchThreshold = 0
	dmp.MatchDistance = 0
	dmp.PatchDeleteThreshold = 0
	return dmp
}

// Make returns the diff that turns oldText into newText.
func Make(oldText, newText string) string {
	dmp := newDMP()
	return dmp.PatchToText(dmp.PatchMake(oldText, newText))
}

func parse(dmp *diffmatchpatch.DiffMatchPatch, diff string) ([]diffmatchpatch.Patch, error) {
	if strings.TrimSpace(diff) == "" {
		return nil, ErrEmpty
	}
	patches, err := dmp.PatchFromText(diff)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(patches) == 0 {
		return nil, ErrEmpty
	}
	return patches, nil
}

// Validate checks that diff parses.
func Validate(diff string) error {
	_, err := parse(newDMP(), diff)
	return err
}

// Apply applies diff to text. Every hunk must match its context exactly at
// the offset it was made for.
func Apply(text, diff string) (string, error) {
	dmp := newDMP()
	patches, err := parse(dmp, diff)
	if err != nil {
		return "", err
	}
	growth := 0
	for _, p := range patches {
		growth += p.Length2 - p.Length1
	}
	out, applied := dmp.PatchApply(patches, text)
	for i, ok := range applied {
		if !ok {
			return "", fmt.Errorf("%w: hunk %d of %d", ErrHunkFailed, i+1, len(applied))
		}
	}
	if len(out)-len(text) != growth {
		return "", fmt.Errorf("%w: result length differs from the diff", ErrHunkFailed)
	}
	return out, nil
}

// Stat applies diff to text and measures the change.
func Stat(text, diff string) (Stats, error) {
	dmp := newDMP()
	patches, err := parse(dmp, diff)
	if err != nil {
		return Stats{}, err
	}
	out, err := Apply(text, diff)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Hunks: len(patches), Base: len([]rune(text))}
	for _, d := range dmp.DiffMain(text, out, false) {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			st.Inserted += len([]rune(d.Text))
		case diffmatchpatch.DiffDelete:
			st.Deleted += len([]rune(d.Text))
		}
	}
	return st, nil
}

// Inserted returns the text newText adds relative to oldText, one fragment
// per line. Safety scans run over this rather than the whole file.
func Inserted(oldText, newText string) string {
	dmp := newDMP()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffInsert {
			sb.WriteString(d.Text)
			if !strings.HasSuffix(d.Text, "\n") {
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}
