package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/collab/internal/document"
	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Store used for development without MongoDB and
// for unit tests.
type MemoryRepo struct {
	mu       sync.RWMutex
	docs     map[string]*document.Document
	versions map[string][]*document.Version // per document, oldest first
	seq      int64

	// updateHook, when set, runs before every UpdateContent; a non-nil error
	// fails the write.
	updateHook func(id, content string) error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs:     make(map[string]*document.Document),
		versions: make(map[string][]*document.Version),
	}
}

func (m *MemoryRepo) CreateDocument(_ context.Context, d *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *MemoryRepo) GetDocument(_ context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, document.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryRepo) UpdateContent(_ context.Context, id, content string) error {
	m.mu.RLock()
	hook := m.updateHook
	m.mu.RUnlock()
	if hook != nil {
		if err := hook(id, content); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return document.ErrNotFound
	}
	d.Content = content
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// SetUpdateHook installs a hook run before every content write. Tests use it
// to simulate an unavailable store.
func (m *MemoryRepo) SetUpdateHook(fn func(id, content string) error) {
	m.mu.Lock()
	m.updateHook = fn
	m.mu.Unlock()
}

func (m *MemoryRepo) UpdateCredential(_ context.Context, id, credentialHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return document.ErrNotFound
	}
	d.CredentialHash = credentialHash
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) AppendVersion(_ context.Context, v *document.Version) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[v.DocumentID]; !ok {
		return "", document.ErrNotFound
	}
	m.seq++
	cp := *v
	cp.ID = uuid.NewString()
	cp.Seq = m.seq
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.versions[v.DocumentID] = append(m.versions[v.DocumentID], &cp)
	v.ID, v.Seq, v.CreatedAt = cp.ID, cp.Seq, cp.CreatedAt
	return cp.ID, nil
}

func (m *MemoryRepo) ListVersions(_ context.Context, documentID string, limit int) ([]*document.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.versions[documentID]
	out := make([]*document.Version, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryRepo) GetVersion(_ context.Context, versionID string) (*document.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, list := range m.versions {
		for _, v := range list {
			if v.ID == versionID {
				cp := *v
				return &cp, nil
			}
		}
	}
	return nil, document.ErrVersionNotFound
}

func (m *MemoryRepo) PruneVersions(_ context.Context, documentID string, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.versions[documentID]
	if keep < 0 {
		keep = 0
	}
	if len(list) <= keep {
		return 0, nil
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	removed := len(list) - keep
	m.versions[documentID] = append([]*document.Version(nil), list[removed:]...)
	return int64(removed), nil
}
