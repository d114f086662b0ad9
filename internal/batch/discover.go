package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultGlob matches the statement PDFs the bank's export produces.
const DefaultGlob = "Account_statement_*.pdf"

// Discover lists statement files under dataDir. Each sub-directory (one per
// year) is searched for glob. Directories are visited in name order and
// files sorted within each, so the result is chronological for the usual
// layout data/2020/, data/2021/, ...
func Discover(dataDir, glob string) ([]string, error) {
	if glob == "" {
		glob = DefaultGlob
	}
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data dir %q: %w", dataDir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dataDir, e.Name(), glob))
		if err != nil {
			return nil, fmt.Errorf("bad statement pattern %q: %w", glob, err)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, nil
}
