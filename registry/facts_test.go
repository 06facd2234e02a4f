package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestFactRegistryResolve(t *testing.T) {
	reg := NewFactRegistry()
	reg.Register("fileName", ScopeFile, func(_ context.Context, _ map[string]any, ec Context) (any, error) {
		if ec.File == nil {
			return nil, fmt.Errorf("fileName requires a per-file context")
		}
		return ec.File.Name, nil
	})

	ec := Context{File: &FileContext{Name: "src/App.tsx", Content: "x"}}
	got, err := reg.Resolve(context.Background(), "fileName", nil, ec)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if got != "src/App.tsx" {
		t.Errorf("Resolve() = %v, want src/App.tsx", got)
	}
}

func TestFactRegistryUnknownFact(t *testing.T) {
	reg := NewFactRegistry()

	_, err := reg.Resolve(context.Background(), "nope", nil, Context{})
	if err == nil {
		t.Fatal("Resolve() should fail for an unknown fact")
	}
	if !errors.Is(err, ErrUnknownFact) {
		t.Errorf("error should wrap ErrUnknownFact, got: %v", err)
	}
}

func TestFactRegistryParamsForwarded(t *testing.T) {
	reg := NewFactRegistry()
	reg.Register("echo", ScopeFile, func(_ context.Context, params map[string]any, _ Context) (any, error) {
		return params["key"], nil
	})

	got, err := reg.Resolve(context.Background(), "echo", map[string]any{"key": "value"}, Context{})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if got != "value" {
		t.Errorf("params were not forwarded, got %v", got)
	}
}

func TestFactRegistryScope(t *testing.T) {
	reg := NewFactRegistry()
	reg.Register("fileName", ScopeFile, func(_ context.Context, _ map[string]any, _ Context) (any, error) { return nil, nil })
	reg.Register("repoFiles", ScopeGlobal, func(_ context.Context, _ map[string]any, _ Context) (any, error) { return nil, nil })

	if reg.IsGlobal("fileName") {
		t.Error("fileName should not be global")
	}
	if !reg.IsGlobal("repoFiles") {
		t.Error("repoFiles should be global")
	}
	if reg.IsGlobal("unregistered") {
		t.Error("unregistered facts should not report as global")
	}
}
