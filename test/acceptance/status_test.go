package acceptance_test

import (
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("aidp status", func() {
	var tmpDir, repoDir, configPath string

	BeforeEach(func() {
		tmpDir, repoDir = setupTestRepo("status-")
		configPath = filepath.Join(repoDir, "aidp.yml")
		writeFile(configPath, `
work_loop:
  defaults:
    fallback_agentic: decide_whats_next

providers:
  "":
    command: "sh"
    args: ["-c", "printf 'reviewed.\\nSTATUS: COMPLETE\\n'"]
`)
	})

	AfterEach(func() {
		cleanupTestRepo(repoDir, tmpDir)
	})

	Context("before any run", func() {
		It("shows an empty task ledger", func() {
			cmd := exec.Command(binaryPath, "status", configPath)
			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(output)).To(ContainSubstring("pending: 0"))
		})
	})

	Context("after a completed run", func() {
		BeforeEach(func() {
			cmd := exec.Command(binaryPath, "run", "--once", configPath)
			out, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "run failed: %s", string(out))
		})

		It("shows the run's step name in the checkpoint summary", func() {
			cmd := exec.Command(binaryPath, "status", configPath)
			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(output)).To(ContainSubstring("default"))
		})
	})

	Context("with the md output format", func() {
		It("prints raw markdown instead of rendering it", func() {
			cmd := exec.Command(binaryPath, "status", configPath, "--format", "md")
			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(output)).To(ContainSubstring("# Checkpoint:"))
		})
	})
})
