package image

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/radif/imagestore/internal/storage"
)

// mockStore records the order of storage calls. By default it behaves like
// an S3 bucket: Save assigns "uploads/obj-N" and Delete always succeeds.
type mockStore struct {
	mu         sync.Mutex
	calls      []string
	saved      map[string][]byte
	next       int
	saveFunc   func(ctx context.Context, f storage.File) (*storage.Object, error)
	deleteFunc func(ctx context.Context, ref string) error
}

func newMockStore() *mockStore {
	return &mockStore{saved: make(map[string][]byte)}
}

func (m *mockStore) Save(ctx context.Context, f storage.File) (*storage.Object, error) {
	m.mu.Lock()
	m.calls = append(m.calls, "save:"+f.Name)
	m.mu.Unlock()

	if m.saveFunc != nil {
		return m.saveFunc(ctx, f)
	}

	data, err := io.ReadAll(f.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("uploads/obj-%d", m.next)
	m.saved[id] = data
	return &storage.Object{URL: "https://cdn.example.com/images/" + id, ID: id}, nil
}

func (m *mockStore) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	m.calls = append(m.calls, "delete:"+ref)
	m.mu.Unlock()

	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, ref)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, ref)
	return nil
}

func (m *mockStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
