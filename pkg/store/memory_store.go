package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Sibusisongondo/Tdone/internal/viewer"
	"github.com/Sibusisongondo/Tdone/pkg/domain"
)

// MemoryStore keeps metadata in-process. It backs tests and single-node demos.
type MemoryStore struct {
	mu        sync.RWMutex
	magazines map[string]domain.Magazine
	orders    []string
	profiles  map[string]domain.Profile
	viewers   map[string]viewer.State // userID/magazineID -> state
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		magazines: make(map[string]domain.Magazine),
		profiles:  make(map[string]domain.Profile),
		viewers:   make(map[string]viewer.State),
	}
}

// SaveMagazine stores or replaces a magazine record and tracks insertion order.
func (m *MemoryStore) SaveMagazine(_ context.Context, mag domain.Magazine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.magazines[mag.ID]; !exists {
		m.orders = append(m.orders, mag.ID)
	}
	m.magazines[mag.ID] = mag
	return nil
}

// GetMagazine retrieves a magazine by ID.
func (m *MemoryStore) GetMagazine(_ context.Context, id string) (domain.Magazine, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mag, ok := m.magazines[id]
	if !ok {
		return domain.Magazine{}, false, nil
	}
	return m.withArtist(mag), true, nil
}

// ListMagazines returns magazines newest first. Ties keep insertion order.
func (m *MemoryStore) ListMagazines(_ context.Context, filter MagazineFilter) ([]domain.Magazine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	res := make([]domain.Magazine, 0, len(m.orders))
	for _, id := range m.orders {
		mag, ok := m.magazines[id]
		if !ok {
			continue
		}
		if filter.UserID != "" && mag.UserID != filter.UserID {
			continue
		}
		if filter.Category != "" && mag.Category != filter.Category {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(mag.Title), query) {
			continue
		}
		res = append(res, m.withArtist(mag))
	}
	slices.SortStableFunc(res, func(a, b domain.Magazine) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(res) {
			return []domain.Magazine{}, nil
		}
		res = res[filter.Offset:]
	}
	if limit := NormalizeLimit(filter.Limit); len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// DeleteMagazine removes a magazine. The record survives when beforeCommit fails.
func (m *MemoryStore) DeleteMagazine(_ context.Context, id string, beforeCommit func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.magazines[id]; !ok {
		return ErrNotFound
	}
	if beforeCommit != nil {
		if err := beforeCommit(); err != nil {
			return err
		}
	}
	delete(m.magazines, id)
	filtered := m.orders[:0]
	for _, item := range m.orders {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.orders = filtered
	return nil
}

// CountMagazines returns number of matching magazines.
func (m *MemoryStore) CountMagazines(_ context.Context, filter CountFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, mag := range m.magazines {
		if filter.matches(mag) {
			n++
		}
	}
	return n, nil
}

// CountCategories returns number of distinct categories in use.
func (m *MemoryStore) CountCategories(_ context.Context, filter CountFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, mag := range m.magazines {
		if filter.matches(mag) {
			seen[mag.Category] = struct{}{}
		}
	}
	return len(seen), nil
}

func (f CountFilter) matches(mag domain.Magazine) bool {
	if f.UserID != "" && mag.UserID != f.UserID {
		return false
	}
	return f.CreatedSince.IsZero() || !mag.CreatedAt.Before(f.CreatedSince)
}

// EnsureProfile stores p unless the ID is already known.
func (m *MemoryStore) EnsureProfile(_ context.Context, p domain.Profile) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.profiles[p.ID]; ok {
		return existing, nil
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.SocialLinks == nil {
		p.SocialLinks = map[string]string{}
	}
	m.profiles[p.ID] = p
	return p, nil
}

// GetProfile returns a profile by ID.
func (m *MemoryStore) GetProfile(_ context.Context, id string) (domain.Profile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	return p, ok, nil
}

// CountProfiles returns number of registered users.
func (m *MemoryStore) CountProfiles(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles), nil
}

// LoadViewerState returns the saved viewer state for a reader.
func (m *MemoryStore) LoadViewerState(_ context.Context, userID, magazineID string) (viewer.State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.viewers[userID+"/"+magazineID]
	return st, ok, nil
}

// SaveViewerState records the viewer state for a reader.
func (m *MemoryStore) SaveViewerState(_ context.Context, userID, magazineID string, state viewer.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewers[userID+"/"+magazineID] = state
	return nil
}

// caller holds mu
func (m *MemoryStore) withArtist(mag domain.Magazine) domain.Magazine {
	if p, ok := m.profiles[mag.UserID]; ok {
		mag.ArtistName = p.ArtistName
	}
	return mag
}
