package vault

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
)

type memDoc struct {
	text    string
	modTime time.Time
	seq     int
}

// Memory is an in-process Store. Documents are listed in insertion order.
type Memory struct {
	mu      sync.RWMutex
	docs    map[string]memDoc
	seq     int
	adapter *MemoryAdapter
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		docs:    make(map[string]memDoc),
		adapter: NewMemoryAdapter(),
		now:     time.Now,
	}
}

// Put adds or replaces a document, stamping it with the current time.
func (m *Memory) Put(id, text string) {
	m.PutAt(id, text, m.now())
}

// PutAt adds or replaces a document with an explicit modification time.
func (m *Memory) PutAt(id, text string, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		m.seq++
		d.seq = m.seq
	}
	d.text, d.modTime = text, modTime
	m.docs[id] = d
}

func (m *Memory) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
}

func (m *Memory) List(ctx context.Context) ([]DocumentInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	type entry struct {
		info DocumentInfo
		seq  int
	}
	entries := make([]entry, 0, len(m.docs))
	for id, d := range m.docs {
		entries = append(entries, entry{DocumentInfo{ID: id, ModTime: d.modTime, Size: int64(len(d.text))}, d.seq})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]DocumentInfo, len(entries))
	for i, e := range entries {
		out[i] = e.info
	}
	return out, nil
}

func (m *Memory) Read(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
	}
	return d.text, nil
}

func (m *Memory) Adapter() Adapter { return m.adapter }
func (m *Memory) BaseDir() string  { return "" }

// MemoryAdapter is an Adapter backed by a map. Directories are tracked only
// so Exists reports them. Missing files read as os.ErrNotExist.
type MemoryAdapter struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]struct{}
	// Fail, when set, is consulted before every operation and its error
	// returned instead of performing it.
	Fail func(op, path string) error
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{files: make(map[string][]byte), dirs: make(map[string]struct{})}
}

func (a *MemoryAdapter) check(op, path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if a.Fail != nil {
		return a.Fail(op, path)
	}
	return nil
}

func (a *MemoryAdapter) Exists(ctx context.Context, path string) (bool, error) {
	if err := a.check("exists", path); err != nil {
		return false, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.files[path]; ok {
		return true, nil
	}
	_, ok := a.dirs[strings.TrimSuffix(path, "/")]
	return ok, nil
}

func (a *MemoryAdapter) Read(ctx context.Context, path string) ([]byte, error) {
	if err := a.check("read", path); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.files[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, os.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

func (a *MemoryAdapter) Write(ctx context.Context, path string, data []byte) error {
	if err := a.check("write", path); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files[path] = append([]byte(nil), data...)
	return nil
}

func (a *MemoryAdapter) Mkdir(ctx context.Context, path string) error {
	if err := a.check("mkdir", path); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dirs[strings.TrimSuffix(path, "/")] = struct{}{}
	return nil
}

func (a *MemoryAdapter) Remove(ctx context.Context, path string) error {
	if err := a.check("remove", path); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.files, path)
	return nil
}

func (a *MemoryAdapter) Rename(ctx context.Context, from, to string) error {
	if err := a.check("rename", from); err != nil {
		return err
	}
	if err := ValidatePath(to); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.files[from]
	if !ok {
		return fmt.Errorf("rename %s: %w", from, os.ErrNotExist)
	}
	a.files[to] = data
	delete(a.files, from)
	return nil
}

// Files returns the stored paths, sorted.
func (a *MemoryAdapter) Files() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.files))
	for p := range a.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
