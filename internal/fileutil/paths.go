package fileutil

import "path/filepath"

// AidpSubdir builds a path to a subdirectory within a repository's
// .aidp scaffolding directory.
func AidpSubdir(repoDir, subdir string) string {
	return filepath.Join(repoDir, ".aidp", subdir)
}
