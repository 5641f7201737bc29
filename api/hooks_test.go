package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/eventstream"
	"github.com/anatolykoptev/MemOS/pkg/graph"
	"github.com/anatolykoptev/MemOS/pkg/graph/inmemory"
)

// recordingSyncer captures mirror calls for assertions.
type recordingSyncer struct {
	mu       sync.Mutex
	upserted []*graph.Node
	deleted  []string
	full     bool
}

func (r *recordingSyncer) EnqueueUpsert(nodes ...*graph.Node) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return false
	}
	r.upserted = append(r.upserted, nodes...)
	return true
}

func (r *recordingSyncer) EnqueueDelete(ids ...string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return false
	}
	r.deleted = append(r.deleted, ids...)
	return true
}

// recordingPublisher captures published node events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.NodeEventV1
}

func (r *recordingPublisher) PublishNodeEvent(_ context.Context, event *eventstream.NodeEventV1) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

var _ = Describe("write hooks", func() {
	var (
		server    *Server
		store     *inmemory.Store
		syncer    *recordingSyncer
		publisher *recordingPublisher
	)

	do := func(method, target string, body any) *http.Response {
		var reader io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(b)
		}
		req, err := http.NewRequest(method, target, reader)
		Expect(err).NotTo(HaveOccurred())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	BeforeEach(func() {
		store = inmemory.NewStore()
		syncer = &recordingSyncer{}
		publisher = &recordingPublisher{}
		server = NewServer(Config{
			ListenAddr: ":0",
			Sync:       syncer,
			Publisher:  publisher,
		}, store, zap.NewNop())
	})

	It("mirrors a created node and publishes an added event", func() {
		resp := do(http.MethodPost, "/api/v1/nodes", AddNodeRequest{ID: "h1", Memory: "hook me"})
		Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

		Expect(syncer.upserted).To(HaveLen(1))
		Expect(syncer.upserted[0].ID).To(Equal("h1"))

		Expect(publisher.events).To(HaveLen(1))
		Expect(publisher.events[0].EventType).To(Equal(eventstream.EventTypeNodeAdded))
		Expect(publisher.events[0].NodeID).To(Equal("h1"))
	})

	It("mirrors every node of a batch", func() {
		resp := do(http.MethodPost, "/api/v1/nodes/batch", AddNodesRequest{
			Nodes: []*graph.Node{
				{ID: "b1", Memory: "first"},
				{ID: "b2", Memory: "second"},
			},
		})
		Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

		Expect(syncer.upserted).To(HaveLen(2))
		Expect(publisher.events).To(HaveLen(2))
	})

	It("mirrors deletes and publishes a deleted event", func() {
		Expect(store.AddNode(context.Background(), "gone", "to delete", nil)).To(Succeed())

		resp := do(http.MethodDelete, "/api/v1/nodes/gone", nil)
		Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))

		Expect(syncer.deleted).To(Equal([]string{"gone"}))
		Expect(publisher.events).To(HaveLen(1))
		Expect(publisher.events[0].EventType).To(Equal(eventstream.EventTypeNodeDeleted))
	})

	It("publishes an updated event on patch", func() {
		Expect(store.AddNode(context.Background(), "u1", "before", nil)).To(Succeed())

		resp := do(http.MethodPatch, "/api/v1/nodes/u1", map[string]any{"memory": "after"})
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		Expect(syncer.upserted).To(HaveLen(1))
		Expect(publisher.events).To(HaveLen(1))
		Expect(publisher.events[0].EventType).To(Equal(eventstream.EventTypeNodeUpdated))
	})

	It("keeps the write successful when the mirror queue is full", func() {
		syncer.full = true

		resp := do(http.MethodPost, "/api/v1/nodes", AddNodeRequest{ID: "h2", Memory: "still stored"})
		Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))

		node, err := store.GetNode(context.Background(), "h2", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(node).NotTo(BeNil())
	})

	It("does not publish when a write fails", func() {
		resp := do(http.MethodPost, "/api/v1/nodes", AddNodeRequest{Memory: ""})
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		Expect(publisher.events).To(BeEmpty())
		Expect(syncer.upserted).To(BeEmpty())
	})
})
