package store

import (
	"context"

	"filevault/pkg/domain"
)

// Store defines persistence operations for users and files.
type Store interface {
	// users
	SaveUser(ctx context.Context, u domain.User) error
	HasUserEmail(ctx context.Context, email string) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	DeleteUser(ctx context.Context, id string) (bool, error)

	// admin listing and batch moderation
	ListUsersPage(ctx context.Context, q string, page, perPage int) ([]domain.UserListItem, int64, error)
	UserTotals(ctx context.Context) (domain.UserTotals, error)
	ListUsersByIDs(ctx context.Context, ids []string, role domain.UserRole) ([]domain.User, error)
	SetUsersBanned(ctx context.Context, ids []string, banned bool) (int64, error)
	DeleteUsersByIDs(ctx context.Context, ids []string) (int64, error)

	// files
	SaveFile(ctx context.Context, f domain.File) error
	GetFileByID(ctx context.Context, id string) (domain.File, bool, error)
	ListFilesPage(ctx context.Context, ownerID, q string, page, perPage int) ([]domain.File, int64, error)
	ListFilesByIDs(ctx context.Context, ids []string, ownerID string) ([]domain.File, error)
	ListFilesByOwners(ctx context.Context, ownerIDs []string) ([]domain.File, error)
	DeleteFilesByIDs(ctx context.Context, ids []string, ownerID string) (int64, error)
	DeleteFilesByOwners(ctx context.Context, ownerIDs []string) (int64, error)
	SumFileSizes(ctx context.Context, ownerID string) (int64, error)
}

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

// NormalizePage clamps pagination inputs: page is at least 1, perPage is
// clamped into [1, 100] and defaults to 10 when unset.
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage == 0 {
		perPage = defaultPerPage
	}
	if perPage < 1 {
		perPage = 1
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}
