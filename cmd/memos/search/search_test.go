package searchcmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	searchcmder "github.com/anatolykoptev/MemOS/cmd/memos/search"
)

var _ = Describe("NewSearchCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := searchcmder.NewSearchCmd()
		Expect(cmd.Use).To(Equal("search <query>"))
	})

	It("requires exactly one argument", func() {
		cmd := searchcmder.NewSearchCmd()
		Expect(cmd.Args(cmd, []string{})).To(HaveOccurred())
		Expect(cmd.Args(cmd, []string{"query"})).NotTo(HaveOccurred())
		Expect(cmd.Args(cmd, []string{"a", "b"})).To(HaveOccurred())
	})

	It("defaults --top to the shared search default", func() {
		cmd := searchcmder.NewSearchCmd()
		f := cmd.Flags().Lookup("top")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("t"))
		Expect(f.DefValue).To(Equal("5"))
	})

	It("has a --quiet flag", func() {
		cmd := searchcmder.NewSearchCmd()
		f := cmd.Flags().Lookup("quiet")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("q"))
	})
})
