package acceptance_test

import (
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("aidp gate", func() {
	var tmpDir, repoDir, configPath string

	BeforeEach(func() {
		tmpDir, repoDir = setupTestRepo("gate-")
		configPath = filepath.Join(repoDir, "aidp.yml")
	})

	AfterEach(func() {
		cleanupTestRepo(repoDir, tmpDir)
	})

	Context("with a passing command unit", func() {
		BeforeEach(func() {
			writeFile(configPath, `
work_loop:
  defaults:
    fallback_agentic: decide_whats_next
  units:
    - name: lint
      type: command
      command: "echo lint passed"
`)
		})

		It("exits with code 0", func() {
			cmd := exec.Command(binaryPath, "gate", "-c", configPath)
			err := cmd.Run()
			Expect(err).NotTo(HaveOccurred())
		})

		It("prints the unit header", func() {
			cmd := exec.Command(binaryPath, "gate", "-c", configPath)
			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(output)).To(ContainSubstring("--- lint ---"))
		})
	})

	Context("with a failing command unit", func() {
		BeforeEach(func() {
			writeFile(configPath, `
work_loop:
  defaults:
    fallback_agentic: decide_whats_next
  units:
    - name: lint
      type: command
      command: "exit 1"
`)
		})

		It("exits with a non-zero code", func() {
			cmd := exec.Command(binaryPath, "gate", "-c", configPath)
			err := cmd.Run()
			Expect(err).To(HaveOccurred())
		})
	})

	Context("fail-fast behavior", func() {
		BeforeEach(func() {
			writeFile(configPath, `
work_loop:
  defaults:
    fallback_agentic: decide_whats_next
  units:
    - name: first
      type: command
      command: "exit 1"
    - name: second
      type: command
      command: "echo second ran"
`)
		})

		It("does not run the second unit after the first fails", func() {
			cmd := exec.Command(binaryPath, "gate", "-c", configPath)
			output, _ := cmd.CombinedOutput()
			out := string(output)
			Expect(out).To(ContainSubstring("--- first ---"))
			Expect(out).NotTo(ContainSubstring("--- second ---"))
		})
	})

	Context("{staged} substitution", func() {
		BeforeEach(func() {
			writeFile(configPath, `
work_loop:
  defaults:
    fallback_agentic: decide_whats_next
  units:
    - name: check
      type: command
      command: "echo {staged}"
`)
			writeFile(filepath.Join(repoDir, "new.txt"), "new content\n")
			runGit(repoDir, "add", "new.txt")
		})

		It("substitutes staged file names into the unit command", func() {
			cmd := exec.Command(binaryPath, "gate", "-c", configPath)
			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(output)).To(ContainSubstring("new.txt"))
		})
	})

	Context("with no command units configured", func() {
		BeforeEach(func() {
			writeFile(configPath, `
work_loop:
  defaults:
    fallback_agentic: decide_whats_next
`)
		})

		It("exits with code 0 and prints a message", func() {
			cmd := exec.Command(binaryPath, "gate", "-c", configPath)
			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(output)).To(ContainSubstring("No command units configured"))
		})
	})
})
