// Package plugins loads CEL-defined custom operators and facts from a
// source set's plugin manifest. Expressions are compiled once during the
// engine's "Initializing plugins" stage; a compile failure is an
// initialization error, never a per-condition one.
package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/rulesim/registry"
)

// ManifestFileName is the optional plugin manifest inside a source set.
const ManifestFileName = "plugins.yaml"

// Kind discriminates plugin declarations.
const (
	KindOperator = "operator"
	KindFact     = "fact"
)

// Definition is one plugin declaration. Operator expressions see `fact` and
// `value` variables and must yield a boolean; fact expressions see `file`
// and `corpus` maps and may yield any value.
type Definition struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	Scope      string `yaml:"scope"` // facts only: "file" (default) or "global"
	Expression string `yaml:"expression"`
}

// Manifest is the plugins.yaml document.
type Manifest struct {
	Plugins []Definition `yaml:"plugins"`
}

// Expression cost ceiling, matching the engine-wide guard against runaway
// rule content.
const costLimit = 1_000_000

// LoadManifest reads the plugin manifest from a source set directory. A
// missing manifest is not an error; it yields an empty manifest.
func LoadManifest(sourceSetDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(sourceSetDir, ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("failed to read plugin manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid plugin manifest: %w", err)
	}
	return &m, nil
}

// Apply compiles every plugin in the manifest and registers the compiled
// programs into the given registries. Any compile failure aborts with an
// error naming the plugin.
func Apply(m *Manifest, factReg *registry.FactRegistry, opReg *registry.OperatorRegistry) error {
	for _, def := range m.Plugins {
		if def.Name == "" {
			return fmt.Errorf("plugin declaration is missing a name")
		}
		switch def.Kind {
		case KindOperator:
			fn, err := compileOperator(def)
			if err != nil {
				return fmt.Errorf("plugin %q: %w", def.Name, err)
			}
			opReg.Register(def.Name, fn)
		case KindFact:
			fn, scope, err := compileFact(def)
			if err != nil {
				return fmt.Errorf("plugin %q: %w", def.Name, err)
			}
			factReg.Register(def.Name, scope, fn)
		default:
			return fmt.Errorf("plugin %q: unknown kind %q (must be %q or %q)", def.Name, def.Kind, KindOperator, KindFact)
		}
	}
	return nil
}

func compileOperator(def Definition) (registry.OperatorFunc, error) {
	env, err := cel.NewEnv(
		cel.Variable("fact", cel.DynType),
		cel.Variable("value", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	prog, err := compile(env, def.Expression)
	if err != nil {
		return nil, err
	}

	return func(factValue, compareValue any) (bool, error) {
		out, _, err := prog.Eval(map[string]any{
			"fact":  factValue,
			"value": compareValue,
		})
		if err != nil {
			return false, fmt.Errorf("plugin operator %q: %w", def.Name, err)
		}
		result, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("plugin operator %q returned %T, want bool", def.Name, out.Value())
		}
		return result, nil
	}, nil
}

func compileFact(def Definition) (registry.FactFunc, registry.Scope, error) {
	scope := registry.ScopeFile
	switch def.Scope {
	case "", "file":
	case "global":
		scope = registry.ScopeGlobal
	default:
		return nil, 0, fmt.Errorf("unknown scope %q (must be \"file\" or \"global\")", def.Scope)
	}

	env, err := cel.NewEnv(
		cel.Variable("file", cel.DynType),
		cel.Variable("corpus", cel.DynType),
		cel.Variable("params", cel.DynType),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	prog, err := compile(env, def.Expression)
	if err != nil {
		return nil, 0, err
	}

	fn := func(_ context.Context, params map[string]any, ec registry.Context) (any, error) {
		vars := map[string]any{
			"file":   fileVars(ec),
			"corpus": corpusVars(ec),
			"params": paramsOrEmpty(params),
		}
		out, _, err := prog.Eval(vars)
		if err != nil {
			return nil, fmt.Errorf("plugin fact %q: %w", def.Name, err)
		}
		return out.Value(), nil
	}
	return fn, scope, nil
}

func compile(env *cel.Env, expression string) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prog, err := env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

func fileVars(ec registry.Context) map[string]any {
	if ec.File == nil {
		return map[string]any{}
	}
	return map[string]any{
		"name":    ec.File.Name,
		"content": ec.File.Content,
	}
}

func corpusVars(ec registry.Context) map[string]any {
	if ec.Corpus == nil {
		return map[string]any{}
	}
	return map[string]any{
		"files":     ec.Corpus.Names(),
		"fileCount": ec.Corpus.Len(),
	}
}

func paramsOrEmpty(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return params
}
