package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"filevault/pkg/domain"
)

// MemoryStore is an in-memory Store used in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
	files map[string]domain.File
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		files: make(map[string]domain.File),
	}
}

func (s *MemoryStore) SaveUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) HasUserEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)
	return true, nil
}

func (s *MemoryStore) ListUsersPage(_ context.Context, q string, page, perPage int) ([]domain.UserListItem, int64, error) {
	page, perPage = NormalizePage(page, perPage)
	q = strings.ToLower(strings.TrimSpace(q))

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		if q == "" || strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(strings.ToLower(u.Email), q) {
			matched = append(matched, u)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	start := (page - 1) * perPage
	if start >= len(matched) {
		return []domain.UserListItem{}, total, nil
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}

	items := make([]domain.UserListItem, 0, end-start)
	for _, u := range matched[start:end] {
		item := domain.UserListItem{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			Role:      u.Role,
			Verified:  u.Verified,
			Banned:    u.Banned,
			CreatedAt: u.CreatedAt,
		}
		if u.Role != domain.RoleAdmin {
			var count, size int64
			for _, f := range s.files {
				if f.OwnerID == u.ID {
					count++
					size += f.Size
				}
			}
			item.FileCount = &count
			item.TotalSizeBytes = &size
		}
		items = append(items, item)
	}
	return items, total, nil
}

func (s *MemoryStore) UserTotals(_ context.Context) (domain.UserTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var totals domain.UserTotals
	for _, u := range s.users {
		if u.Role == domain.RoleAdmin {
			totals.Admins++
		}
		if u.Verified {
			totals.Verified++
		}
		if u.Banned {
			totals.Banned++
		}
	}
	return totals, nil
}

func (s *MemoryStore) ListUsersByIDs(_ context.Context, ids []string, role domain.UserRole) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var users []domain.User
	for _, id := range ids {
		u, ok := s.users[id]
		if !ok {
			continue
		}
		if role != "" && u.Role != role {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *MemoryStore) SetUsersBanned(_ context.Context, ids []string, banned bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		u, ok := s.users[id]
		if !ok || u.Role != domain.RoleUser {
			continue
		}
		u.Banned = banned
		s.users[id] = u
		n++
	}
	return n, nil
}

func (s *MemoryStore) DeleteUsersByIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := s.users[id]; ok {
			delete(s.users, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SaveFile(_ context.Context, f domain.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[f.ID] = f
	return nil
}

func (s *MemoryStore) GetFileByID(_ context.Context, id string) (domain.File, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	return f, ok, nil
}

func (s *MemoryStore) ListFilesPage(_ context.Context, ownerID, q string, page, perPage int) ([]domain.File, int64, error) {
	page, perPage = NormalizePage(page, perPage)
	q = strings.ToLower(strings.TrimSpace(q))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.File
	for _, f := range s.files {
		if f.OwnerID != ownerID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(f.Filename), q) {
			continue
		}
		matched = append(matched, f)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	start := (page - 1) * perPage
	if start >= len(matched) {
		return []domain.File{}, total, nil
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}
	return append([]domain.File(nil), matched[start:end]...), total, nil
}

func (s *MemoryStore) ListFilesByIDs(_ context.Context, ids []string, ownerID string) ([]domain.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var files []domain.File
	for _, id := range ids {
		f, ok := s.files[id]
		if !ok {
			continue
		}
		if ownerID != "" && f.OwnerID != ownerID {
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

func (s *MemoryStore) ListFilesByOwners(_ context.Context, ownerIDs []string) ([]domain.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owners := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = true
	}
	var files []domain.File
	for _, f := range s.files {
		if owners[f.OwnerID] {
			files = append(files, f)
		}
	}
	return files, nil
}

func (s *MemoryStore) DeleteFilesByIDs(_ context.Context, ids []string, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		f, ok := s.files[id]
		if !ok {
			continue
		}
		if ownerID != "" && f.OwnerID != ownerID {
			continue
		}
		delete(s.files, id)
		n++
	}
	return n, nil
}

func (s *MemoryStore) DeleteFilesByOwners(_ context.Context, ownerIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owners := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = true
	}
	var n int64
	for id, f := range s.files {
		if owners[f.OwnerID] {
			delete(s.files, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SumFileSizes(_ context.Context, ownerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, f := range s.files {
		if f.OwnerID == ownerID {
			total += f.Size
		}
	}
	return total, nil
}
