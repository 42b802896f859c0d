package acceptance_test

import (
	"os/exec"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("aidp viz", func() {
	Context("with a simple unit graph", func() {
		It("exits with code 0", func() {
			cmd := exec.Command(binaryPath, "viz", testdataPath("valid.yaml"))
			err := cmd.Run()
			Expect(err).NotTo(HaveOccurred())
		})

		It("shows the decider", func() {
			cmd := exec.Command(binaryPath, "viz", testdataPath("valid.yaml"))
			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(output)).To(ContainSubstring("[decider: decide_whats_next]"))
		})

		It("shows unit names and outcome edges", func() {
			cmd := exec.Command(binaryPath, "viz", testdataPath("complex_graph.yaml"))
			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred())
			out := string(output)
			Expect(out).To(ContainSubstring("run_tests"))
			Expect(out).To(ContainSubstring("lint"))
			Expect(out).To(ContainSubstring("(pass) ->"))
		})
	})
})
