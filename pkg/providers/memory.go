package providers

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/syncbridge/syncbridge/pkg/dotpath"
)

// Memory is an in-process provider backed by maps. It serves local registers
// and is the workhorse of the engine's tests; the call counters exist so
// idempotence properties can be asserted against it.
type Memory struct {
	mu       sync.Mutex
	refs     map[string]map[string]map[string]interface{}
	pageSize int
	nextID   int

	listCalls   int
	writeCalls  int
	deleteCalls int
}

func NewMemory(pageSize int) *Memory {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Memory{
		refs:     map[string]map[string]map[string]interface{}{},
		pageSize: pageSize,
	}
}

// Seed replaces the object stored under (ref, id) without counting as a
// write.
func (m *Memory) Seed(ref, id string, payload map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects(ref)[id] = dotpath.DeepCopy(payload)
}

// Remove drops the object without counting as a delete.
func (m *Memory) Remove(ref, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects(ref), id)
}

func (m *Memory) List(_ context.Context, ref string, page int) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++

	objects := m.objects(ref)
	ids := make([]string, 0, len(objects))
	for id := range objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if page < 0 {
		page = 0
	}
	start := page * m.pageSize
	if start >= len(ids) {
		return &Page{}, nil
	}
	end := start + m.pageSize
	if end > len(ids) {
		end = len(ids)
	}

	result := &Page{HasMore: end < len(ids)}
	for _, id := range ids[start:end] {
		result.Objects = append(result.Objects, Object{
			OriginID: id,
			Payload:  dotpath.DeepCopy(objects[id]),
		})
	}
	return result, nil
}

func (m *Memory) Get(_ context.Context, ref, id string) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payload, ok := m.objects(ref)[id]
	if !ok {
		return nil, ErrNotFound
	}
	return dotpath.DeepCopy(payload), nil
}

func (m *Memory) Write(_ context.Context, ref string, object map[string]interface{}, existingID *string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++

	id := ""
	if existingID != nil {
		id = *existingID
	} else {
		m.nextID++
		id = "obj-" + strconv.Itoa(m.nextID)
	}
	m.objects(ref)[id] = dotpath.DeepCopy(object)
	return id, nil
}

func (m *Memory) Delete(_ context.Context, ref, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++

	// Already absent counts as success; delete is idempotent.
	delete(m.objects(ref), id)
	return nil
}

func (m *Memory) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

func (m *Memory) WriteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCalls
}

func (m *Memory) DeleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteCalls
}

// Len reports how many objects are stored under ref.
func (m *Memory) Len(ref string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects(ref))
}

func (m *Memory) objects(ref string) map[string]map[string]interface{} {
	objects, ok := m.refs[ref]
	if !ok {
		objects = map[string]map[string]interface{}{}
		m.refs[ref] = objects
	}
	return objects
}
