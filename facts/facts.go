// Package facts provides the builtin fact providers the engine registers at
// initialization: per-file facts resolving against one artifact, and global
// facts resolving against the aggregate corpus view.
package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/liamcoop/rulesim/parser"
	"github.com/liamcoop/rulesim/registry"
)

// Register wires every builtin fact into reg. The parser is shared with the
// engine; it must be bootstrapped before facts resolve.
func Register(reg *registry.FactRegistry, p *parser.Parser) {
	reg.Register("fileName", registry.ScopeFile, factFileName)
	reg.Register("fileExtension", registry.ScopeFile, factFileExtension)
	reg.Register("fileContent", registry.ScopeFile, factFileContent)
	reg.Register("lineCount", registry.ScopeFile, factLineCount)
	reg.Register("fileData", registry.ScopeFile, factFileData)
	reg.Register("astSummary", registry.ScopeFile, astSummaryFact(p))

	reg.Register("repoFiles", registry.ScopeGlobal, factRepoFiles)
	reg.Register("fileCount", registry.ScopeGlobal, factFileCount)
	reg.Register("corpusData", registry.ScopeGlobal, factCorpusData)
	reg.Register("dependencies", registry.ScopeGlobal, packageJSONFact("dependencies"))
	reg.Register("devDependencies", registry.ScopeGlobal, packageJSONFact("devDependencies"))
}

func requireFile(ec registry.Context) (*registry.FileContext, error) {
	if ec.File == nil {
		return nil, fmt.Errorf("fact requires a per-file context (rule is running in global scope)")
	}
	return ec.File, nil
}

func factFileName(_ context.Context, _ map[string]any, ec registry.Context) (any, error) {
	file, err := requireFile(ec)
	if err != nil {
		return nil, err
	}
	return file.Name, nil
}

func factFileExtension(_ context.Context, _ map[string]any, ec registry.Context) (any, error) {
	file, err := requireFile(ec)
	if err != nil {
		return nil, err
	}
	return path.Ext(file.Name), nil
}

func factFileContent(_ context.Context, _ map[string]any, ec registry.Context) (any, error) {
	file, err := requireFile(ec)
	if err != nil {
		return nil, err
	}
	return file.Content, nil
}

func factLineCount(_ context.Context, _ map[string]any, ec registry.Context) (any, error) {
	file, err := requireFile(ec)
	if err != nil {
		return nil, err
	}
	return countLines(file.Content), nil
}

// factFileData bundles the per-file attributes into one JSONPath-friendly
// map, so a condition can extract with e.g. path "$.content".
func factFileData(_ context.Context, _ map[string]any, ec registry.Context) (any, error) {
	file, err := requireFile(ec)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"name":      file.Name,
		"extension": path.Ext(file.Name),
		"content":   file.Content,
		"lineCount": countLines(file.Content),
	}, nil
}

func astSummaryFact(p *parser.Parser) registry.FactFunc {
	return func(ctx context.Context, _ map[string]any, ec registry.Context) (any, error) {
		file, err := requireFile(ec)
		if err != nil {
			return nil, err
		}
		summary, err := p.Summary(ctx, file.Name, file.Content)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"language":       string(summary.Language),
			"functionCount":  summary.FunctionCount,
			"importCount":    summary.ImportCount,
			"imports":        toAnySlice(summary.Imports),
			"nodeCount":      summary.NodeCount,
			"hasParseErrors": summary.HasParseErrors,
		}, nil
	}
}

func requireCorpus(ec registry.Context) error {
	if ec.Corpus == nil {
		return fmt.Errorf("fact requires a loaded corpus")
	}
	return nil
}

func factRepoFiles(_ context.Context, _ map[string]any, ec registry.Context) (any, error) {
	if err := requireCorpus(ec); err != nil {
		return nil, err
	}
	return toAnySlice(ec.Corpus.Names()), nil
}

func factFileCount(_ context.Context, _ map[string]any, ec registry.Context) (any, error) {
	if err := requireCorpus(ec); err != nil {
		return nil, err
	}
	return ec.Corpus.Len(), nil
}

func factCorpusData(_ context.Context, _ map[string]any, ec registry.Context) (any, error) {
	if err := requireCorpus(ec); err != nil {
		return nil, err
	}
	return map[string]any{
		"fileCount":  ec.Corpus.Len(),
		"files":      toAnySlice(ec.Corpus.Names()),
		"totalBytes": ec.Corpus.TotalBytes(),
	}, nil
}

// packageJSONFact resolves the named section of the corpus's package.json.
// With a "name" param it returns that single dependency's version string;
// without, the whole section as a map.
func packageJSONFact(section string) registry.FactFunc {
	return func(_ context.Context, params map[string]any, ec registry.Context) (any, error) {
		if err := requireCorpus(ec); err != nil {
			return nil, err
		}

		content, ok := ec.Corpus.File("package.json")
		if !ok {
			return nil, fmt.Errorf("corpus has no package.json")
		}

		var manifest map[string]any
		if err := json.Unmarshal([]byte(content), &manifest); err != nil {
			return nil, fmt.Errorf("invalid package.json: %w", err)
		}

		deps, _ := manifest[section].(map[string]any)
		if deps == nil {
			deps = map[string]any{}
		}

		if name, ok := params["name"].(string); ok && name != "" {
			version, ok := deps[name]
			if !ok {
				return nil, fmt.Errorf("%s has no entry %q", section, name)
			}
			return version, nil
		}
		return deps, nil
	}
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}

func toAnySlice(items []string) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
