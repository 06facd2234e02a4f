package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownSourceSet is returned when the requested source set directory
// does not exist under the fixtures root.
var ErrUnknownSourceSet = errors.New("unknown source set")

// ManifestFileName is the optional per-source-set manifest.
const ManifestFileName = "manifest.yaml"

// Manifest carries optional source set metadata. Ignore entries are glob
// patterns (path.Match syntax) applied to slash-separated relative paths.
type Manifest struct {
	Description string   `yaml:"description"`
	Ignore      []string `yaml:"ignore"`
}

// Directories never loaded into a snapshot.
var skippedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
}

// Load walks root/<sourceSetID> and snapshots every regular file into a Set.
// Hidden files, common build output directories and manifest-ignored paths
// are skipped. File names inside the Set are slash-separated paths relative
// to the source set directory.
func Load(ctx context.Context, root, sourceSetID string) (*Set, error) {
	if sourceSetID == "" {
		return nil, fmt.Errorf("%w: empty source set id", ErrUnknownSourceSet)
	}

	dir := filepath.Join(root, sourceSetID)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %q (looked in %s)", ErrUnknownSourceSet, sourceSetID, root)
	}

	manifest, err := loadManifest(dir)
	if err != nil {
		return nil, err
	}

	set := &Set{
		id:       sourceSetID,
		files:    make(map[string]string),
		manifest: manifest,
	}

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if p != dir && (skippedDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || name == ManifestFileName {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if manifest.ignores(rel) {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}

		set.files[rel] = string(data)
		set.totalBytes += int64(len(data))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load source set %q: %w", sourceSetID, err)
	}

	set.order = make([]string, 0, len(set.files))
	for name := range set.files {
		set.order = append(set.order, name)
	}
	sort.Strings(set.order)

	return set, nil
}

// ListSourceSets returns the source set ids available under root, in sorted
// order. Non-directories and hidden entries are skipped.
func ListSourceSets(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures root: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func loadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return m, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("invalid manifest: %w", err)
	}
	return m, nil
}

func (m Manifest) ignores(rel string) bool {
	for _, pattern := range m.Ignore {
		if ok, err := path.Match(pattern, rel); err == nil && ok {
			return true
		}
		// Also match against the base name so "*.min.js" style patterns
		// apply anywhere in the tree.
		if ok, err := path.Match(pattern, path.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}
