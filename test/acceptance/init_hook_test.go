package acceptance_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("aidp init (pre-commit hook)", func() {
	var tmpDir, repoDir string

	BeforeEach(func() {
		tmpDir, repoDir = setupTestRepo("init-hook-")
	})

	AfterEach(func() {
		cleanupTestRepo(repoDir, tmpDir)
	})

	It("scaffolds .aidp/ and installs an executable pre-commit hook", func() {
		cmd := exec.Command(binaryPath, "init", repoDir)
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "init failed: %s", string(output))

		for _, sub := range []string{"work_loop", "agent-logs", "shell"} {
			info, statErr := os.Stat(filepath.Join(repoDir, ".aidp", sub))
			Expect(statErr).NotTo(HaveOccurred())
			Expect(info.IsDir()).To(BeTrue())
		}

		hookPath := filepath.Join(repoDir, ".git", "hooks", "pre-commit")
		info, err := os.Stat(hookPath)
		Expect(err).NotTo(HaveOccurred(), "hook should exist")
		Expect(info.Mode().Perm() & 0o111).NotTo(BeZero(), "hook should be executable")
		Expect(string(output)).To(ContainSubstring("hook"))
	})

	Context("when a pre-commit hook already exists", func() {
		BeforeEach(func() {
			hookDir := filepath.Join(repoDir, ".git", "hooks")
			Expect(os.MkdirAll(hookDir, 0o755)).To(Succeed())
			writeFile(filepath.Join(hookDir, "pre-commit"), "#!/bin/sh\necho existing\n")
			Expect(os.Chmod(filepath.Join(hookDir, "pre-commit"), 0o755)).To(Succeed())
		})

		It("injects the gate block while preserving original content", func() {
			cmd := exec.Command(binaryPath, "init", repoDir)
			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "init failed: %s", string(output))

			hookContent, err := os.ReadFile(filepath.Join(repoDir, ".git", "hooks", "pre-commit"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(hookContent)).To(ContainSubstring("echo existing"))
			Expect(string(hookContent)).To(ContainSubstring("# BEGIN aidp gate"))
			Expect(string(hookContent)).To(ContainSubstring("aidp gate || exit 1"))
			Expect(string(output)).To(ContainSubstring("injected aidp gate"))
		})
	})

	Context("when the gate block is already injected", func() {
		BeforeEach(func() {
			hookDir := filepath.Join(repoDir, ".git", "hooks")
			Expect(os.MkdirAll(hookDir, 0o755)).To(Succeed())
			writeFile(filepath.Join(hookDir, "pre-commit"), "#!/bin/sh\necho existing\n\n# BEGIN aidp gate\nif command -v aidp >/dev/null 2>&1; then\n    aidp gate || exit 1\nfi\n# END aidp gate\n")
			Expect(os.Chmod(filepath.Join(hookDir, "pre-commit"), 0o755)).To(Succeed())
		})

		It("is idempotent — does not duplicate the block", func() {
			cmd := exec.Command(binaryPath, "init", repoDir)
			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "init failed: %s", string(output))

			hookContent, err := os.ReadFile(filepath.Join(repoDir, ".git", "hooks", "pre-commit"))
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Count(string(hookContent), "# BEGIN aidp gate")).To(Equal(1))
			Expect(string(output)).To(ContainSubstring("already present"))
		})
	})

	Context("when the existing hook ends with exit 0", func() {
		BeforeEach(func() {
			hookDir := filepath.Join(repoDir, ".git", "hooks")
			Expect(os.MkdirAll(hookDir, 0o755)).To(Succeed())
			writeFile(filepath.Join(hookDir, "pre-commit"), "#!/bin/sh\necho existing\nexit 0\n")
			Expect(os.Chmod(filepath.Join(hookDir, "pre-commit"), 0o755)).To(Succeed())
		})

		It("injects the gate block before the final exit 0", func() {
			cmd := exec.Command(binaryPath, "init", repoDir)
			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "init failed: %s", string(output))

			hookContent, err := os.ReadFile(filepath.Join(repoDir, ".git", "hooks", "pre-commit"))
			Expect(err).NotTo(HaveOccurred())
			content := string(hookContent)
			gateIdx := strings.Index(content, "# BEGIN aidp gate")
			exitIdx := strings.LastIndex(content, "exit 0\n")
			Expect(gateIdx).To(BeNumerically("<", exitIdx), "gate block should appear before final exit 0")
		})
	})

	Context("when the target directory is not a git repository", func() {
		It("fails", func() {
			dir, err := os.MkdirTemp("", "init-nogit-*")
			Expect(err).NotTo(HaveOccurred())
			defer os.RemoveAll(dir)

			cmd := exec.Command(binaryPath, "init", dir)
			err = cmd.Run()
			Expect(err).To(HaveOccurred())
		})
	})
})
