package acceptance_test

import (
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("aidp run --once", func() {
	var tmpDir, repoDir, configPath string

	BeforeEach(func() {
		tmpDir, repoDir = setupTestRepo("run-")
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

	It("exits with code 0 when the agent reports completion", func() {
		cmd := exec.Command(binaryPath, "run", "--once", configPath)
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "output: %s", string(output))
	})

	It("records a checkpoint snapshot", func() {
		cmd := exec.Command(binaryPath, "run", "--once", configPath)
		output, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "output: %s", string(output))

		_, statErr := os.Stat(filepath.Join(repoDir, ".aidp", "checkpoint.yml"))
		Expect(statErr).NotTo(HaveOccurred())
	})

	Context("when the agent never reports completion", func() {
		BeforeEach(func() {
			writeFile(configPath, `
harness:
  max_iterations: 2

work_loop:
  defaults:
    fallback_agentic: decide_whats_next

providers:
  "":
    command: "sh"
    args: ["-c", "printf 'still working\\n'"]
`)
		})

		It("exits with a non-zero code once max iterations is exceeded", func() {
			cmd := exec.Command(binaryPath, "run", "--once", configPath)
			err := cmd.Run()
			Expect(err).To(HaveOccurred())
		})
	})

	Context("when the agent files a task and never resolves it", func() {
		BeforeEach(func() {
			writeFile(configPath, `
harness:
  max_iterations: 2
  task_completion_required: true

work_loop:
  defaults:
    fallback_agentic: decide_whats_next

providers:
  "":
    command: "sh"
    args: ["-c", "printf 'File task: \"wire the thing\"\\nSTATUS: COMPLETE\\n'"]
`)
		})

		It("does not treat the step as completed", func() {
			cmd := exec.Command(binaryPath, "run", "--once", configPath)
			err := cmd.Run()
			Expect(err).To(HaveOccurred())
		})
	})
})
