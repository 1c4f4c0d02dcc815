package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"filevault/pkg/domain"
)

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		page, perPage     int
		wantPage, wantPer int
	}{
		{0, 0, 1, 10},
		{-3, 0, 1, 10},
		{2, 25, 2, 25},
		{1, -1, 1, 1},
		{1, 1000, 1, 100},
	}
	for _, c := range cases {
		gotPage, gotPer := NormalizePage(c.page, c.perPage)
		if gotPage != c.wantPage || gotPer != c.wantPer {
			t.Fatalf("NormalizePage(%d, %d) = (%d, %d), want (%d, %d)",
				c.page, c.perPage, gotPage, gotPer, c.wantPage, c.wantPer)
		}
	}
}

func TestEscapeLike(t *testing.T) {
	got := escapeLike(`50%_off\now`)
	want := `50\%\_off\\now`
	if got != want {
		t.Fatalf("escapeLike = %q, want %q", got, want)
	}
}

func seedUsers(t *testing.T, s *MemoryStore, n int) []domain.User {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	users := make([]domain.User, 0, n)
	for i := 0; i < n; i++ {
		u := domain.User{
			ID:        fmt.Sprintf("u%03d", i),
			Name:      fmt.Sprintf("user %d", i),
			Email:     fmt.Sprintf("user%d@example.com", i),
			Role:      domain.RoleUser,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveUser(ctx, u); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
		users = append(users, u)
	}
	return users
}

func TestListUsersPageOrderAndPagination(t *testing.T) {
	s := NewMemoryStore()
	seedUsers(t, s, 25)
	ctx := context.Background()

	items, total, err := s.ListUsersPage(ctx, "", 1, 10)
	if err != nil {
		t.Fatalf("ListUsersPage: %v", err)
	}
	if total != 25 {
		t.Fatalf("total = %d, want 25", total)
	}
	if len(items) != 10 {
		t.Fatalf("len(items) = %d, want 10", len(items))
	}
	// Newest first.
	if items[0].ID != "u024" {
		t.Fatalf("first item = %s, want u024", items[0].ID)
	}
	if !items[0].CreatedAt.After(items[9].CreatedAt) {
		t.Fatalf("items not ordered newest first")
	}

	// Past the end: empty page, total intact.
	items, total, err = s.ListUsersPage(ctx, "", 4, 10)
	if err != nil {
		t.Fatalf("ListUsersPage: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("len(items) = %d, want 0", len(items))
	}
	if total != 25 {
		t.Fatalf("total = %d, want 25", total)
	}
}

func TestListUsersPageAggregates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	alice := domain.User{ID: "a1", Name: "alice", Email: "alice@example.com", Role: domain.RoleUser, CreatedAt: now}
	bob := domain.User{ID: "b1", Name: "bob", Email: "bob@example.com", Role: domain.RoleUser, CreatedAt: now.Add(time.Second)}
	root := domain.User{ID: "r1", Name: "root", Email: "root@example.com", Role: domain.RoleAdmin, CreatedAt: now.Add(2 * time.Second)}
	for _, u := range []domain.User{alice, bob, root} {
		if err := s.SaveUser(ctx, u); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
	}
	for i, size := range []int64{100, 250} {
		f := domain.File{ID: fmt.Sprintf("f%d", i), Filename: "doc.pdf", OwnerID: "a1", Size: size, CreatedAt: now}
		if err := s.SaveFile(ctx, f); err != nil {
			t.Fatalf("SaveFile: %v", err)
		}
	}

	items, _, err := s.ListUsersPage(ctx, "", 1, 10)
	if err != nil {
		t.Fatalf("ListUsersPage: %v", err)
	}
	byID := make(map[string]domain.UserListItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	a := byID["a1"]
	if a.FileCount == nil || *a.FileCount != 2 {
		t.Fatalf("alice FileCount = %v, want 2", a.FileCount)
	}
	if a.TotalSizeBytes == nil || *a.TotalSizeBytes != 350 {
		t.Fatalf("alice TotalSizeBytes = %v, want 350", a.TotalSizeBytes)
	}

	b := byID["b1"]
	if b.FileCount == nil || *b.FileCount != 0 {
		t.Fatalf("bob FileCount = %v, want 0", b.FileCount)
	}
	if b.TotalSizeBytes == nil || *b.TotalSizeBytes != 0 {
		t.Fatalf("bob TotalSizeBytes = %v, want 0", b.TotalSizeBytes)
	}

	r := byID["r1"]
	if r.FileCount != nil || r.TotalSizeBytes != nil {
		t.Fatalf("admin stats = (%v, %v), want (nil, nil)", r.FileCount, r.TotalSizeBytes)
	}
}

func TestListUsersPageSearch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	for _, u := range []domain.User{
		{ID: "1", Name: "Alice", Email: "alice@example.com", Role: domain.RoleUser, Verified: true, CreatedAt: now},
		{ID: "2", Name: "Ali Baba", Email: "ab@example.com", Role: domain.RoleUser, Banned: true, CreatedAt: now},
		{ID: "3", Name: "Carol", Email: "malika@example.com", Role: domain.RoleUser, CreatedAt: now},
		{ID: "4", Name: "Dan", Email: "dan@example.com", Role: domain.RoleAdmin, CreatedAt: now},
	} {
		if err := s.SaveUser(ctx, u); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
	}

	items, total, err := s.ListUsersPage(ctx, "ali", 1, 10)
	if err != nil {
		t.Fatalf("ListUsersPage: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("search ali: total=%d len=%d, want 3/3", total, len(items))
	}

	// Sitewide counters ignore the filter.
	totals, err := s.UserTotals(ctx)
	if err != nil {
		t.Fatalf("UserTotals: %v", err)
	}
	if totals.Admins != 1 || totals.Verified != 1 || totals.Banned != 1 {
		t.Fatalf("totals = %+v, want 1/1/1", totals)
	}
}

func TestSetUsersBannedSkipsAdmins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.SaveUser(ctx, domain.User{ID: "u1", Role: domain.RoleUser})
	_ = s.SaveUser(ctx, domain.User{ID: "a1", Role: domain.RoleAdmin})

	n, err := s.SetUsersBanned(ctx, []string{"u1", "a1", "missing"}, true)
	if err != nil {
		t.Fatalf("SetUsersBanned: %v", err)
	}
	if n != 1 {
		t.Fatalf("banned count = %d, want 1", n)
	}
	u, _, _ := s.GetUserByID(ctx, "u1")
	if !u.Banned {
		t.Fatalf("u1 not banned")
	}
	a, _, _ := s.GetUserByID(ctx, "a1")
	if a.Banned {
		t.Fatalf("admin was banned")
	}
}

func TestDeleteFilesByIDsScopedAndIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = s.SaveFile(ctx, domain.File{ID: fmt.Sprintf("f%d", i), OwnerID: "owner1", Size: 10})
	}
	_ = s.SaveFile(ctx, domain.File{ID: "other", OwnerID: "owner2", Size: 10})

	ids := []string{"f0", "f1", "f2", "other"}
	n, err := s.DeleteFilesByIDs(ctx, ids, "owner1")
	if err != nil {
		t.Fatalf("DeleteFilesByIDs: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted = %d, want 3", n)
	}
	// Second run removes nothing.
	n, err = s.DeleteFilesByIDs(ctx, ids, "owner1")
	if err != nil {
		t.Fatalf("DeleteFilesByIDs: %v", err)
	}
	if n != 0 {
		t.Fatalf("deleted = %d, want 0", n)
	}
	if _, ok, _ := s.GetFileByID(ctx, "other"); !ok {
		t.Fatalf("file of another owner was deleted")
	}
}

func TestSumFileSizes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.SaveFile(ctx, domain.File{ID: "f1", OwnerID: "u1", Size: 100})
	_ = s.SaveFile(ctx, domain.File{ID: "f2", OwnerID: "u1", Size: 250})
	_ = s.SaveFile(ctx, domain.File{ID: "f3", OwnerID: "u2", Size: 999})

	total, err := s.SumFileSizes(ctx, "u1")
	if err != nil {
		t.Fatalf("SumFileSizes: %v", err)
	}
	if total != 350 {
		t.Fatalf("total = %d, want 350", total)
	}
	total, err = s.SumFileSizes(ctx, "nobody")
	if err != nil {
		t.Fatalf("SumFileSizes: %v", err)
	}
	if total != 0 {
		t.Fatalf("total = %d, want 0", total)
	}
}
