package acceptance_test

import (
	"os/exec"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("aidp validate", func() {
	Context("with a valid config", func() {
		It("exits with code 0", func() {
			cmd := exec.Command(binaryPath, "validate", testdataPath("valid.yaml"))
			err := cmd.Run()
			Expect(err).NotTo(HaveOccurred())
		})

		It("prints a success message", func() {
			cmd := exec.Command(binaryPath, "validate", testdataPath("valid.yaml"))
			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(output)).To(ContainSubstring("valid"))
		})
	})

	Context("with invalid YAML syntax", func() {
		It("exits with a non-zero code", func() {
			cmd := exec.Command(binaryPath, "validate", testdataPath("invalid_yaml.yaml"))
			err := cmd.Run()
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with missing required fields", func() {
		It("exits with a non-zero code", func() {
			cmd := exec.Command(binaryPath, "validate", testdataPath("missing_fields.yaml"))
			err := cmd.Run()
			Expect(err).To(HaveOccurred())
		})

		It("reports the missing fallback_agentic default", func() {
			cmd := exec.Command(binaryPath, "validate", testdataPath("missing_fields.yaml"))
			output, _ := cmd.CombinedOutput()
			Expect(string(output)).To(ContainSubstring("fallback_agentic is required"))
		})
	})

	Context("with a cycle in the unit graph", func() {
		It("exits with a non-zero code", func() {
			cmd := exec.Command(binaryPath, "validate", testdataPath("cycle.yaml"))
			err := cmd.Run()
			Expect(err).To(HaveOccurred())
		})

		It("reports the cycle", func() {
			cmd := exec.Command(binaryPath, "validate", testdataPath("cycle.yaml"))
			output, _ := cmd.CombinedOutput()
			Expect(string(output)).To(ContainSubstring("cycle detected"))
		})
	})

	Context("with a duplicate unit name", func() {
		It("reports the duplicate", func() {
			cmd := exec.Command(binaryPath, "validate", testdataPath("duplicate_unit.yaml"))
			output, _ := cmd.CombinedOutput()
			Expect(string(output)).To(ContainSubstring("duplicate unit name"))
		})
	})

	Context("with a nonexistent file", func() {
		It("exits with a non-zero code", func() {
			cmd := exec.Command(binaryPath, "validate", "/tmp/does-not-exist-aidp.yaml")
			err := cmd.Run()
			Expect(err).To(HaveOccurred())
		})
	})
})
