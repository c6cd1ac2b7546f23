package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/bucketsim/internal/constants"
)

// GlobalDataDir returns the path to the user's .bucketsim directory.
// On Unix: ~/.bucketsim
// On Windows: %USERPROFILE%\.bucketsim
func GlobalDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DataDirName), nil
}

// DataDir returns the .bucketsim directory for the given project root.
func DataDir(projectRoot string) string {
	return filepath.Join(projectRoot, constants.DataDirName)
}

// ResultsPath returns the results database path for the given project root.
func ResultsPath(projectRoot string) string {
	return filepath.Join(DataDir(projectRoot), constants.ResultsDBName)
}

// EnsureDataDir creates the .bucketsim directory under projectRoot if it
// doesn't exist and returns its path.
func EnsureDataDir(projectRoot string) (string, error) {
	dir := DataDir(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", constants.DataDirName, err)
	}
	return dir, nil
}
