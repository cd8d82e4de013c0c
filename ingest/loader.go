package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Input is one discovered file with its raw bytes. The fingerprint is
// computed over Raw before any parsing happens.
type Input struct {
	Path string
	Raw  []byte
}

// DiscoverOptions filter the data directory walk.
type DiscoverOptions struct {
	// Include are doublestar patterns matched against the path
	// relative to the data directory. Empty means include everything.
	Include []string

	// Exclude patterns are applied after Include.
	Exclude []string
}

// Discover walks the data directory and reads every file matching the
// include/exclude patterns. Hidden directories are skipped.
func Discover(dir string, opts DiscoverOptions) ([]Input, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory: %s is not a directory", dir)
	}

	var inputs []Input
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); len(name) > 1 && name[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !matchAny(opts.Include, rel, true) || matchAny(opts.Exclude, rel, false) {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		inputs = append(inputs, Input{Path: path, Raw: raw})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return inputs, nil
}

// matchAny reports whether any pattern matches rel. With no patterns it
// returns emptyDefault.
func matchAny(patterns []string, rel string, emptyDefault bool) bool {
	if len(patterns) == 0 {
		return emptyDefault
	}
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
