package snapshotcmder_test

import (
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	memoscmder "github.com/anatolykoptev/MemOS/cmd/memos"
	snapshotcmder "github.com/anatolykoptev/MemOS/cmd/memos/snapshot"
	"github.com/anatolykoptev/MemOS/pkg/graph"
)

var _ = Describe("NewSnapshotCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := snapshotcmder.NewSnapshotCmd()
		Expect(cmd.Use).To(Equal("snapshot"))
	})

	It("has export and import subcommands", func() {
		cmd := snapshotcmder.NewSnapshotCmd()
		names := make([]string, 0)
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("export", "import"))
	})
})

var _ = Describe("Snapshot command execution", func() {
	var (
		dotDir string
		tmpDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "memos-snapshot-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		dotDir = filepath.Join(tmpDir, ".memos")
		Expect(os.MkdirAll(dotDir, 0o755)).To(Succeed())

		cfg := "[graph]\nprovider = \"inmemory\"\n"
		Expect(os.WriteFile(filepath.Join(dotDir, "config.toml"), []byte(cfg), 0o644)).To(Succeed())
	})

	It("exports a snapshot to a file", func() {
		out := filepath.Join(tmpDir, "graph.json")

		root := memoscmder.NewMemosCmd()
		root.SetArgs([]string{"snapshot", "export", "-o", out, "--config-dir", dotDir})
		Expect(root.Execute()).To(Succeed())

		data, err := os.ReadFile(out)
		Expect(err).NotTo(HaveOccurred())

		var snap graph.Snapshot
		Expect(json.Unmarshal(data, &snap)).To(Succeed())
	})

	It("imports a snapshot file", func() {
		snap := graph.Snapshot{
			Nodes: []*graph.Node{
				{ID: "n1", Memory: "first", Metadata: map[string]any{}},
				{ID: "n2", Memory: "second", Metadata: map[string]any{}},
			},
			Edges: []graph.Edge{{Source: "n1", Target: "n2", Type: "FOLLOWS"}},
		}
		data, err := json.Marshal(snap)
		Expect(err).NotTo(HaveOccurred())

		in := filepath.Join(tmpDir, "import.json")
		Expect(os.WriteFile(in, data, 0o644)).To(Succeed())

		root := memoscmder.NewMemosCmd()
		root.SetArgs([]string{"snapshot", "import", in, "--config-dir", dotDir})
		Expect(root.Execute()).To(Succeed())
	})

	It("import fails on a missing file", func() {
		root := memoscmder.NewMemosCmd()
		root.SetArgs([]string{"snapshot", "import", filepath.Join(tmpDir, "missing.json"), "--config-dir", dotDir})
		root.SilenceErrors = true
		root.SilenceUsage = true
		Expect(root.Execute()).To(HaveOccurred())
	})
})
