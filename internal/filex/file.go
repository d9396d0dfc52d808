// Package filex holds small filesystem helpers.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureParentDir creates the directory that will hold path (with parents)
// and returns it. A bare file name in the working directory needs nothing.
func EnsureParentDir(path string) (string, error) {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." {
		return dir, nil
	}

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}
