package acceptance_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// setupTestRepo creates a temp directory with a git repository on
// main, one initial commit, and returns (tmpDir, repoDir).
func setupTestRepo(prefix string) (string, string) {
	tmpDir, err := os.MkdirTemp("", prefix+"*")
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	repoDir := filepath.Join(tmpDir, "repo")
	runGit(tmpDir, "init", repoDir)
	runGit(repoDir, "checkout", "-b", "main")
	writeFile(filepath.Join(repoDir, "hello.txt"), "hello world\n")
	runGit(repoDir, "add", "hello.txt")
	runGit(repoDir, "commit", "-m", "initial commit")

	return tmpDir, repoDir
}

func runGit(dir string, args ...string) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test",
		"GIT_AUTHOR_EMAIL=test@test.com",
		"GIT_COMMITTER_NAME=Test",
		"GIT_COMMITTER_EMAIL=test@test.com",
	)
	out, err := cmd.CombinedOutput()
	ExpectWithOffset(2, err).NotTo(HaveOccurred(), "git %v: %s", args, string(out))
}

func runGitOutput(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	ExpectWithOffset(2, err).NotTo(HaveOccurred(), "git %v: %s", args, string(out))
	return string(out)
}

func writeFile(path, content string) {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0o755)
	ExpectWithOffset(2, err).NotTo(HaveOccurred())
	err = os.WriteFile(path, []byte(content), 0o644)
	ExpectWithOffset(2, err).NotTo(HaveOccurred())
}

func testdataPath(name string) string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "testdata", name)
}
