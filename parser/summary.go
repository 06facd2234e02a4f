package parser

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ASTSummary is the digest the astSummary fact exposes to conditions.
type ASTSummary struct {
	Language       Language `json:"language"`
	FunctionCount  int      `json:"functionCount"`
	ImportCount    int      `json:"importCount"`
	Imports        []string `json:"imports"`
	NodeCount      int      `json:"nodeCount"`
	HasParseErrors bool     `json:"hasParseErrors"`
}

// Node types that count as function definitions across the supported
// grammars (all three share the javascript family's node names).
var functionNodeTypes = map[string]bool{
	"function_declaration":           true,
	"function_expression":            true,
	"arrow_function":                 true,
	"method_definition":              true,
	"generator_function_declaration": true,
}

// Summary parses content and walks the tree once, collecting the counts the
// AST facts report.
func (p *Parser) Summary(ctx context.Context, fileName, content string) (*ASTSummary, error) {
	root, err := p.Parse(ctx, fileName, content)
	if err != nil {
		return nil, err
	}

	summary := &ASTSummary{
		Language:       DetectLanguage(fileName),
		Imports:        []string{},
		HasParseErrors: root.HasError(),
	}

	src := []byte(content)
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		summary.NodeCount++
		nodeType := node.Type()
		if functionNodeTypes[nodeType] {
			summary.FunctionCount++
		}
		if nodeType == "import_statement" {
			summary.ImportCount++
			if src := importSource(node, src); src != "" {
				summary.Imports = append(summary.Imports, src)
			}
		}

		for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, node.NamedChild(i))
		}
	}

	return summary, nil
}

// importSource extracts the module specifier of an import statement, with
// quotes stripped.
func importSource(node *sitter.Node, src []byte) string {
	source := node.ChildByFieldName("source")
	if source == nil {
		return ""
	}
	return strings.Trim(source.Content(src), "'\"`")
}
