package addcmder_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	memoscmder "github.com/anatolykoptev/MemOS/cmd/memos"
	addcmder "github.com/anatolykoptev/MemOS/cmd/memos/add"
)

var _ = Describe("NewAddCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := addcmder.NewAddCmd()
		Expect(cmd.Use).To(Equal("add <memory>"))
	})

	It("requires exactly one argument", func() {
		cmd := addcmder.NewAddCmd()
		Expect(cmd.Args(cmd, []string{})).To(HaveOccurred())
		Expect(cmd.Args(cmd, []string{"a memory"})).NotTo(HaveOccurred())
		Expect(cmd.Args(cmd, []string{"one", "two"})).To(HaveOccurred())
	})

	It("defaults --scope to LongTermMemory", func() {
		cmd := addcmder.NewAddCmd()
		f := cmd.Flags().Lookup("scope")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal("LongTermMemory"))
	})

	It("has id, user, tags and no-embed flags", func() {
		cmd := addcmder.NewAddCmd()
		for _, name := range []string{"id", "user", "tags", "no-embed"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})
})

var _ = Describe("Add command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "memos-add-test-*")
		Expect(err).NotTo(HaveOccurred())

		dotdir := filepath.Join(tmpDir, ".memos")
		Expect(os.MkdirAll(dotdir, 0o755)).To(Succeed())

		cfg := "[graph]\nprovider = \"inmemory\"\n"
		Expect(os.WriteFile(filepath.Join(dotdir, "config.toml"), []byte(cfg), 0o644)).To(Succeed())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		Expect(os.RemoveAll(tmpDir)).To(Succeed())
	})

	It("stores a node against the in-memory backend", func() {
		root := memoscmder.NewMemosCmd()
		root.SetArgs([]string{"add", "the user prefers dark mode", "--no-embed"})
		Expect(root.Execute()).To(Succeed())
	})

	It("rejects an unrecognized scope", func() {
		root := memoscmder.NewMemosCmd()
		root.SetArgs([]string{"add", "some memory", "--no-embed", "--scope", "NotAScope"})
		root.SilenceErrors = true
		root.SilenceUsage = true
		Expect(root.Execute()).To(HaveOccurred())
	})
})
