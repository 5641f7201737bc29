package initcmder_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/anatolykoptev/MemOS/cmd/memos/init"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("accepts zero arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{})).NotTo(HaveOccurred())
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{"extra"})).To(HaveOccurred())
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "memos-init-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		Expect(os.RemoveAll(tmpDir)).To(Succeed())
	})

	It("creates a local .memos directory with a default config", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Execute()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".memos"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())

		data, err := os.ReadFile(filepath.Join(tmpDir, ".memos", "config.toml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`provider = "sqlite"`))
	})

	It("seeds the server preset when requested", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{"--preset", "server"})
		Expect(cmd.Execute()).To(Succeed())

		data, err := os.ReadFile(filepath.Join(tmpDir, ".memos", "config.toml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`provider = "postgres"`))
		Expect(string(data)).To(ContainSubstring(`provider = "qdrant"`))
	})

	It("rejects an unknown preset", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{"--preset", "galactic"})
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		Expect(cmd.Execute()).To(HaveOccurred())
	})

	It("is idempotent when the directory exists", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Execute()).To(Succeed())

		again := initcmder.NewInitCmd()
		Expect(again.Execute()).To(Succeed())
	})
})
