package memoscmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	memoscmder "github.com/anatolykoptev/MemOS/cmd/memos"
)

var _ = Describe("NewMemosCmd", func() {
	It("creates the root command", func() {
		cmd := memoscmder.NewMemosCmd()
		Expect(cmd.Use).To(Equal("memos"))
	})

	It("registers every subcommand", func() {
		cmd := memoscmder.NewMemosCmd()
		names := make([]string, 0)
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements(
			"serve", "add", "search", "maintain", "snapshot",
			"websearch", "config", "init", "version",
		))
	})

	It("has a persistent debug flag", func() {
		cmd := memoscmder.NewMemosCmd()
		f := cmd.PersistentFlags().Lookup("debug")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("d"))
		Expect(f.DefValue).To(Equal("false"))
	})

	It("has a persistent config-dir flag", func() {
		cmd := memoscmder.NewMemosCmd()
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})
})
