// Package pathutil confines file writes requested over the tool server to
// known directories.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/bucketsim/internal/constants"
)

// SnapshotDirName is the snapshot directory inside a data directory.
const SnapshotDirName = "snapshots"

// RedactPath reduces a full path to .../<parent>/<basename> for safe error messages.
// For example, "/home/user/.bucketsim/snapshots/a.json.gz" becomes ".../snapshots/a.json.gz".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// ValidatePath checks that path lies inside one of allowedDirs once cleaned
// and with symlinks resolved. The file itself need not exist.
func ValidatePath(path string, allowedDirs []string) error {
	if path == "" {
		return fmt.Errorf("path validation failed: path is empty")
	}
	if len(allowedDirs) == 0 {
		return fmt.Errorf("path validation failed: no allowed directories configured")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path validation failed: path contains null byte")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("path validation failed: cannot resolve absolute path: %w", err)
	}
	// A symlinked directory inside an allowed tree can point outside it.
	resolvedDir, err := resolveExisting(filepath.Dir(absPath))
	if err != nil {
		return fmt.Errorf("path validation failed: cannot resolve parent directory: %w", err)
	}
	resolved := filepath.Join(resolvedDir, filepath.Base(absPath))

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(filepath.Clean(allowed))
		if err != nil {
			continue
		}
		allowedResolved, err := resolveExisting(allowedAbs)
		if err != nil {
			continue
		}
		if isSubpath(resolved, allowedResolved) {
			return nil
		}
	}

	return fmt.Errorf("path validation failed: %q is outside allowed directories", RedactPath(absPath))
}

// resolveExisting resolves symlinks on the deepest existing ancestor of dir
// and re-appends the missing tail.
func resolveExisting(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// isSubpath reports whether path is base or lies below it.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}

// AllowedSnapshotDirs returns the directories snapshots may be written to:
// ~/.bucketsim/snapshots and <projectRoot>/.bucketsim/snapshots.
func AllowedSnapshotDirs(projectRoot string) ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return []string{
		filepath.Join(homeDir, constants.DataDirName, SnapshotDirName),
		ProjectSnapshotDir(projectRoot),
	}, nil
}

// ProjectSnapshotDir returns <projectRoot>/.bucketsim/snapshots.
func ProjectSnapshotDir(projectRoot string) string {
	return filepath.Join(projectRoot, constants.DataDirName, SnapshotDirName)
}

// ResolveSnapshotPath maps name to a path inside the project snapshot
// directory when it is relative, then validates it.
func ResolveSnapshotPath(projectRoot, name string) (string, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(ProjectSnapshotDir(projectRoot), name)
	}
	allowed, err := AllowedSnapshotDirs(projectRoot)
	if err != nil {
		return "", err
	}
	if err := ValidatePath(path, allowed); err != nil {
		return "", err
	}
	return path, nil
}
