// Package syntax checks that a file's content parses under the grammar its
// extension implies.
package syntax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"gopkg.in/yaml.v3"
)

var ErrUnsupported = errors.New("no grammar for file type")

// Error describes a parse failure.
type Error struct {
	Path     string
	Language string
	Detail   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Path, e.Language, e.Detail)
}

// Language returns the grammar name for a path, or "" if unsupported.
func Language(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".go":
		return "go"
	case ".py", ".pyw":
		return "python"
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

// Check parses content as the language implied by p's extension.
func Check(ctx context.Context, p string, content []byte) error {
	lang := Language(p)
	switch lang {
	case "go":
		fset := token.NewFileSet()
		if _, err := parser.ParseFile(fset, p, content, parser.AllErrors); err != nil {
			return &Error{Path: p, Language: lang, Detail: err.Error()}
		}
		return nil
	case "python":
		return checkTreeSitter(ctx, p, lang, python.GetLanguage(), content)
	case "javascript":
		return checkTreeSitter(ctx, p, lang, javascript.GetLanguage(), content)
	case "json":
		if !json.Valid(content) {
			return &Error{Path: p, Language: lang, Detail: "not valid JSON"}
		}
		return nil
	case "yaml":
		var doc yaml.Node
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return &Error{Path: p, Language: lang, Detail: err.Error()}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, p)
	}
}

func checkTreeSitter(ctx context.Context, p, lang string, grammar *sitter.Language, content []byte) error {
	// Parsers carry state; one per call keeps Check safe for concurrent use.
	ps := sitter.NewParser()
	defer ps.Close()
	ps.SetLanguage(grammar)

	tree, err := ps.ParseCtx(ctx, nil, content)
	if err != nil {
		return fmt.Errorf("parse %s: %w", p, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return &Error{Path: p, Language: lang, Detail: firstErrorAt(root)}
	}
	return nil
}

// firstErrorAt locates the first ERROR or MISSING node for the message.
func firstErrorAt(n *sitter.Node) string {
	if n.IsError() || n.IsMissing() {
		pt := n.StartPoint()
		return fmt.Sprintf("syntax error at line %d column %d", pt.Row+1, pt.Column+1)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && (c.HasError() || c.IsMissing()) {
			return firstErrorAt(c)
		}
	}
	return "syntax error"
}
