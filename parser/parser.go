// Package parser wraps tree-sitter for the AST-backed facts. The engine
// bootstraps one Parser during initialization and shares it across
// simulations; Parse and Summary serialize access internally because a
// tree-sitter parser is not reentrant.
package parser

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language identifies a supported grammar.
type Language string

const (
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangUnknown    Language = "unknown"
)

// DetectLanguage maps a file name to a grammar by extension.
func DetectLanguage(fileName string) Language {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		return LangJavaScript
	case ".ts", ".mts", ".cts":
		return LangTypeScript
	case ".tsx":
		return LangTSX
	default:
		return LangUnknown
	}
}

// Parser wraps a tree-sitter parser for multi-language parsing.
type Parser struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

// New creates a parser. Grammars are bound lazily per Parse call.
func New() *Parser {
	return &Parser{parser: sitter.NewParser()}
}

// Bootstrap warms every grammar by parsing a trivial snippet. Run once
// during engine initialization so grammar problems surface there instead of
// mid-simulation.
func (p *Parser) Bootstrap(ctx context.Context) error {
	probes := map[Language]string{
		LangJavaScript: "const a = 1;",
		LangTypeScript: "const a: number = 1;",
		LangTSX:        "const a = <div/>;",
	}
	for lang, src := range probes {
		name := "probe." + extFor(lang)
		if _, err := p.Parse(ctx, name, src); err != nil {
			return fmt.Errorf("failed to bootstrap %s grammar: %w", lang, err)
		}
	}
	return nil
}

// Parse parses content and returns the AST root. The file name selects the
// grammar; unsupported extensions are an error.
func (p *Parser) Parse(ctx context.Context, fileName, content string) (*sitter.Node, error) {
	lang := DetectLanguage(fileName)
	tsLang, err := grammarFor(lang)
	if err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", fileName, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.parser.SetLanguage(tsLang)
	tree, err := p.parser.ParseCtx(ctx, nil, []byte(content))
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", fileName, err)
	}
	return tree.RootNode(), nil
}

func grammarFor(lang Language) (*sitter.Language, error) {
	switch lang {
	case LangJavaScript:
		return javascript.GetLanguage(), nil
	case LangTypeScript:
		return typescript.GetLanguage(), nil
	case LangTSX:
		return tsx.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language %q", lang)
	}
}

func extFor(lang Language) string {
	switch lang {
	case LangJavaScript:
		return "js"
	case LangTypeScript:
		return "ts"
	case LangTSX:
		return "tsx"
	default:
		return ""
	}
}
