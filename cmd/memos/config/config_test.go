package configcmder_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	memoscmder "github.com/anatolykoptev/MemOS/cmd/memos"
	configcmder "github.com/anatolykoptev/MemOS/cmd/memos/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		names := make([]string, 0)
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var dotDir string

	BeforeEach(func() {
		tmpDir, err := os.MkdirTemp("", "memos-config-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		dotDir = filepath.Join(tmpDir, ".memos")
		Expect(os.MkdirAll(dotDir, 0o755)).To(Succeed())
	})

	It("round-trips a value through set and get", func() {
		root := memoscmder.NewMemosCmd()
		root.SetArgs([]string{"config", "set", "graph.provider", "postgres", "--config-dir", dotDir})
		Expect(root.Execute()).To(Succeed())

		data, err := os.ReadFile(filepath.Join(dotDir, "config.toml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`provider = "postgres"`))

		root = memoscmder.NewMemosCmd()
		root.SetArgs([]string{"config", "get", "graph.provider", "--config-dir", dotDir})
		Expect(root.Execute()).To(Succeed())
	})

	It("rejects unknown keys on set", func() {
		root := memoscmder.NewMemosCmd()
		root.SetArgs([]string{"config", "set", "not.a.key", "value", "--config-dir", dotDir})
		root.SilenceErrors = true
		root.SilenceUsage = true
		Expect(root.Execute()).To(HaveOccurred())
	})

	It("rejects unknown keys on get", func() {
		root := memoscmder.NewMemosCmd()
		root.SetArgs([]string{"config", "get", "not.a.key", "--config-dir", dotDir})
		root.SilenceErrors = true
		root.SilenceUsage = true
		Expect(root.Execute()).To(HaveOccurred())
	})

	It("lists all configuration values", func() {
		root := memoscmder.NewMemosCmd()
		root.SetArgs([]string{"config", "list", "--config-dir", dotDir})
		Expect(root.Execute()).To(Succeed())
	})
})
