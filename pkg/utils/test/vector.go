package testutils

import (
	"context"
	"sync"

	"github.com/anatolykoptev/MemOS/pkg/vecstore"
)

// MockVectorStore is a test vector store that records writes and returns
// configurable search results.
type MockVectorStore struct {
	mu sync.Mutex

	// Upserted accumulates all items passed to Add and Upsert.
	Upserted []vecstore.Item

	// Deleted accumulates all ids passed to Delete.
	Deleted []string

	// Results is returned by Search for any query.
	Results []vecstore.Item

	// Err, when set, is returned by every mutating call. Tests use it to
	// exercise retry paths.
	Err error

	// FailCount makes the first FailCount mutating calls return Err and
	// the rest succeed.
	FailCount int

	collection string
	calls      int
}

func NewMockVectorStore(collection string) *MockVectorStore {
	return &MockVectorStore{collection: collection}
}

func (m *MockVectorStore) failNext() error {
	m.calls++
	if m.Err == nil {
		return nil
	}
	if m.FailCount == 0 || m.calls <= m.FailCount {
		return m.Err
	}
	return nil
}

func (m *MockVectorStore) Collection() string {
	return m.collection
}

func (m *MockVectorStore) Search(_ context.Context, _ []float32, topK int, _ map[string]any) ([]vecstore.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if topK > 0 && len(m.Results) > topK {
		return m.Results[:topK], nil
	}
	return m.Results, nil
}

func (m *MockVectorStore) GetByID(_ context.Context, id string) (*vecstore.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.Upserted {
		if m.Upserted[i].ID == id {
			item := m.Upserted[i]
			return &item, nil
		}
	}
	return nil, nil
}

func (m *MockVectorStore) GetByIDs(_ context.Context, ids []string) ([]vecstore.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []vecstore.Item
	for _, id := range ids {
		for i := range m.Upserted {
			if m.Upserted[i].ID == id {
				out = append(out, m.Upserted[i])
				break
			}
		}
	}
	return out, nil
}

func (m *MockVectorStore) GetByFilter(_ context.Context, flat map[string]any) ([]vecstore.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []vecstore.Item
	for _, item := range m.Upserted {
		if vecstore.MatchesPayload(item.Payload, flat) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *MockVectorStore) GetAll(ctx context.Context) ([]vecstore.Item, error) {
	return m.GetByFilter(ctx, nil)
}

func (m *MockVectorStore) Count(ctx context.Context, flat map[string]any) (int64, error) {
	items, err := m.GetByFilter(ctx, flat)
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

func (m *MockVectorStore) Add(_ context.Context, items []vecstore.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failNext(); err != nil {
		return err
	}
	m.Upserted = append(m.Upserted, items...)
	return nil
}

func (m *MockVectorStore) Update(_ context.Context, id string, item vecstore.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failNext(); err != nil {
		return err
	}
	item.ID = id
	m.Upserted = append(m.Upserted, item)
	return nil
}

func (m *MockVectorStore) Upsert(_ context.Context, items []vecstore.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failNext(); err != nil {
		return err
	}
	m.Upserted = append(m.Upserted, items...)
	return nil
}

func (m *MockVectorStore) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failNext(); err != nil {
		return err
	}
	m.Deleted = append(m.Deleted, ids...)
	return nil
}

func (m *MockVectorStore) EnsurePayloadIndexes(_ context.Context, _ []string) error {
	return nil
}

func (m *MockVectorStore) Close() error {
	return nil
}

// UpsertedIDs returns the ids of every item written so far.
func (m *MockVectorStore) UpsertedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(m.Upserted))
	for i, item := range m.Upserted {
		ids[i] = item.ID
	}
	return ids
}
