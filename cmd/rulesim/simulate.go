package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liamcoop/rulesim/rules"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Content string
	Stdin   bool
}

// NewSimulateCommand creates the simulate command: one rule against one
// file, either from the loaded source set or from inline content.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <rule-file> <file-name>",
		Short: "Simulate a rule against one file",
		Long: `Simulate a rule against a single file and print the full evaluation trace.

By default the file is looked up in the configured source set. With --content
or --stdin the supplied content is evaluated instead; the file name still
drives extension-based behavior.

Example:
  rulesim simulate --source-set react-app rules/no-todo.yaml src/App.tsx
  rulesim simulate --stdin rules/no-todo.yaml scratch.ts < scratch.ts`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Content, "content", "", "evaluate this content instead of a source set file")
	cmd.Flags().BoolVar(&opts.Stdin, "stdin", false, "read the content to evaluate from stdin")
	cmd.MarkFlagsMutuallyExclusive("content", "stdin")

	return cmd
}

func runSimulate(cmd *cobra.Command, opts *SimulateOptions, ruleFile, fileName string) error {
	rule, err := rules.LoadFile(ruleFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	_, sim, err := newReadyEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}

	var result any
	switch {
	case opts.Stdin:
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		result, err = sim.SimulateWithContent(ctx, rule, fileName, string(content), simOptions(opts.RootOptions))
		if err != nil {
			return err
		}
	case opts.Content != "":
		result, err = sim.SimulateWithContent(ctx, rule, fileName, opts.Content, simOptions(opts.RootOptions))
		if err != nil {
			return err
		}
	default:
		result, err = sim.Simulate(ctx, rule, fileName, simOptions(opts.RootOptions))
		if err != nil {
			return err
		}
	}

	return printJSON(cmd.OutOrStdout(), result)
}

// GlobalOptions holds flags for the global command.
type GlobalOptions struct {
	*RootOptions
	Inject []string
}

// NewGlobalCommand creates the global command: one rule against the whole
// corpus, with optional injected files.
func NewGlobalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GlobalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "global <rule-file>",
		Short: "Simulate a rule against the whole source set",
		Long: `Simulate a repo-scope rule against the aggregate corpus view.

Files injected with --inject are layered on top of the loaded source set and
take precedence on name collision.

Example:
  rulesim global --source-set react-app rules/dep-check.yaml
  rulesim global --inject package.json=./candidate.json rules/dep-check.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGlobal(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringArrayVar(&opts.Inject, "inject", nil, "inject a file as name=path (repeatable)")

	return cmd
}

func runGlobal(cmd *cobra.Command, opts *GlobalOptions, ruleFile string) error {
	rule, err := rules.LoadFile(ruleFile)
	if err != nil {
		return err
	}

	injected, err := readInjectedFiles(opts.Inject)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	_, sim, err := newReadyEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}

	result, err := sim.SimulateGlobal(ctx, rule, injected, simOptions(opts.RootOptions))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

// readInjectedFiles parses name=path pairs and reads each path.
func readInjectedFiles(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	files := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, path, ok := strings.Cut(pair, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid --inject value %q, want name=path", pair)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read injected file: %w", err)
		}
		files[name] = string(content)
	}
	return files, nil
}

// NewFilesCommand creates the files command: list the files of the
// configured source set.
func NewFilesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List the files of the configured source set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, err := newReadyEngine(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			files, err := ctrl.AvailableFiles()
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
