package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Expand expands a home directory prefix (~) and environment variables in a
// path and returns an absolute path. Settings such as custom virtual-env
// directories and interpreter overrides are expanded with this before they
// are handed to the discovery worker.
func Expand(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, path[2:])
		}
	}

	path = os.ExpandEnv(path)

	return filepath.Abs(path)
}

// ExpandAll expands every path in the given slice, dropping entries that fail
// to expand. The caller logs dropped entries; a bad setting must not abort
// discovery of the remaining roots.
func ExpandAll(paths []string) ([]string, []error) {
	var out []string
	var errs []error
	for _, p := range paths {
		expanded, err := Expand(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("expanding %q: %w", p, err))
			continue
		}
		out = append(out, expanded)
	}
	return out, errs
}
