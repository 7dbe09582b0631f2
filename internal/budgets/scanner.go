// Package budgets locates YNAB4 budget directories on the local disk.
package budgets

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// maxScanDepth bounds how far below each search root the scanner
// descends. Budget directories sit at most two levels down in the
// locations YNAB uses.
const maxScanDepth = 2

// Budget is one discovered YNAB4 budget directory.
type Budget struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Scanner finds YNAB4 budgets under a set of search roots.
type Scanner struct {
	searchPaths []string
	logger      logrus.FieldLogger
}

// NewScanner creates a Scanner. An empty searchPaths selects
// DefaultSearchPaths.
func NewScanner(searchPaths []string, logger logrus.FieldLogger) *Scanner {
	if len(searchPaths) == 0 {
		searchPaths = DefaultSearchPaths()
	}
	return &Scanner{searchPaths: searchPaths, logger: logger}
}

// DefaultSearchPaths returns the usual YNAB4 sync locations under the
// user's home directory.
func DefaultSearchPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, "Dropbox", "YNAB"),
		filepath.Join(home, "Dropbox", "Apps", "YNAB"),
		filepath.Join(home, "Documents", "YNAB"),
	}
}

// Scan walks each search path looking for *.ynab4 directories. Names
// are cleaned of the ~GUID suffix YNAB appends; duplicate paths are
// dropped. Unreadable entries are skipped, not fatal.
func (s *Scanner) Scan() []Budget {
	budgets := []Budget{}
	seen := make(map[string]bool)

	for _, root := range s.searchPaths {
		if _, err := os.Stat(root); err != nil {
			continue
		}

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				s.logger.WithError(err).WithField("path", path).Debug("skipping unreadable entry")
				return nil
			}
			if !d.IsDir() {
				return nil
			}

			if filepath.Ext(path) == ".ynab4" {
				if !seen[path] {
					seen[path] = true
					budgets = append(budgets, Budget{
						Name: cleanName(strings.TrimSuffix(filepath.Base(path), ".ynab4")),
						Path: path,
					})
				}
				// A budget is a leaf; its internals are not budgets.
				return fs.SkipDir
			}

			if pathDepth(root, path) >= maxScanDepth {
				return fs.SkipDir
			}
			return nil
		})
		if err != nil {
			s.logger.WithError(err).WithField("root", root).Debug("budget scan aborted")
		}
	}

	return budgets
}

// cleanName strips the ~GUID suffix from a budget directory name, so
// "My Budget~B0DA1C43" becomes "My Budget".
func cleanName(name string) string {
	if i := strings.Index(name, "~"); i >= 0 {
		return name[:i]
	}
	return name
}

func pathDepth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// DropboxPath returns the user's Dropbox directory when present.
func DropboxPath() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	path := filepath.Join(home, "Dropbox")
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path, true
	}
	return "", false
}
