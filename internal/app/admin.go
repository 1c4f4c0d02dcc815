package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"filevault/pkg/domain"
	"filevault/pkg/store"
)

// UserListing is the admin user listing page plus sitewide counters. The
// counters never follow the search filter.
type UserListing struct {
	Users    []domain.UserListItem `json:"users"`
	Total    int64                 `json:"total"`
	Admins   int64                 `json:"admins"`
	Verified int64                 `json:"verified"`
	Banned   int64                 `json:"banned"`
	Page     int                   `json:"page"`
	PerPage  int                   `json:"perPage"`
}

// ListUsers returns one page of users matching the name/email search,
// each with per-user file statistics, plus the sitewide counters.
func (a *App) ListUsers(ctx context.Context, q string, page, perPage int) (UserListing, error) {
	items, total, err := a.store.ListUsersPage(ctx, q, page, perPage)
	if err != nil {
		return UserListing{}, fmt.Errorf("list users: %w", err)
	}
	totals, err := a.store.UserTotals(ctx)
	if err != nil {
		return UserListing{}, fmt.Errorf("user totals: %w", err)
	}
	page, perPage = store.NormalizePage(page, perPage)
	return UserListing{
		Users:    items,
		Total:    total,
		Admins:   totals.Admins,
		Verified: totals.Verified,
		Banned:   totals.Banned,
		Page:     page,
		PerPage:  perPage,
	}, nil
}

// UserUpdate carries optional admin edits; nil means unchanged.
type UserUpdate struct {
	Name     *string
	Role     *string
	Verified *bool
	Banned   *bool
}

// UpdateUser applies a partial admin edit to one account.
func (a *App) UpdateUser(ctx context.Context, targetID string, upd UserUpdate) (domain.User, error) {
	user, found, err := a.store.GetUserByID(ctx, targetID)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if !found {
		return domain.User{}, ErrNotFound
	}

	changed := false
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return domain.User{}, ErrNameRequired
		}
		user.Name = name
		changed = true
	}
	if upd.Role != nil {
		role := domain.UserRole(strings.ToUpper(strings.TrimSpace(*upd.Role)))
		if role != domain.RoleUser && role != domain.RoleAdmin {
			return domain.User{}, ErrUnknownRole
		}
		user.Role = role
		changed = true
	}
	if upd.Verified != nil {
		user.Verified = *upd.Verified
		changed = true
	}
	if upd.Banned != nil {
		if user.Role == domain.RoleAdmin && *upd.Banned {
			return domain.User{}, ErrTargetIsAdmin
		}
		user.Banned = *upd.Banned
		changed = true
	}
	if !changed {
		return domain.User{}, ErrNothingToApply
	}

	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// DeleteUserByAdmin removes one account with the full file + blob cascade.
// Admin accounts and the caller's own account are refused.
func (a *App) DeleteUserByAdmin(ctx context.Context, callerID, targetID string) (CascadeResult, error) {
	if targetID == callerID {
		return CascadeResult{}, ErrSelfTarget
	}
	target, found, err := a.store.GetUserByID(ctx, targetID)
	if err != nil {
		return CascadeResult{}, fmt.Errorf("get user: %w", err)
	}
	if !found {
		return CascadeResult{}, ErrNotFound
	}
	if target.Role == domain.RoleAdmin {
		return CascadeResult{}, ErrTargetIsAdmin
	}
	return a.DeleteAccount(ctx, targetID)
}

// SetUsersBanned flips the ban flag on a batch. Admin accounts never match
// and are silently skipped; the returned count reflects rows changed.
func (a *App) SetUsersBanned(ctx context.Context, ids []string, banned bool) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}
	n, err := a.store.SetUsersBanned(ctx, ids, banned)
	if err != nil {
		return 0, fmt.Errorf("set banned: %w", err)
	}
	return n, nil
}

// UserBatchResult reports a batch user deletion: accounts removed, file rows
// removed with them, and the per-blob cleanup outcomes.
type UserBatchResult struct {
	DeletedCount      int64                   `json:"deletedCount"`
	FilesDeletedCount int64                   `json:"filesDeletedCount"`
	Outcomes          []domain.CleanupOutcome `json:"outcomes"`
}

// DeleteUsers removes a batch of USER accounts with the full cascade. Admin
// ids in the batch are skipped, never deleted; already-deleted ids count for
// nothing, so re-running a batch reports zero.
func (a *App) DeleteUsers(ctx context.Context, ids []string) (UserBatchResult, error) {
	if len(ids) == 0 {
		return UserBatchResult{}, ErrNoIDs
	}
	targets, err := a.store.ListUsersByIDs(ctx, ids, domain.RoleUser)
	if err != nil {
		return UserBatchResult{}, fmt.Errorf("list users: %w", err)
	}
	if len(targets) == 0 {
		return UserBatchResult{Outcomes: []domain.CleanupOutcome{}}, nil
	}

	targetIDs := make([]string, 0, len(targets))
	for _, t := range targets {
		targetIDs = append(targetIDs, t.ID)
	}
	files, err := a.store.ListFilesByOwners(ctx, targetIDs)
	if err != nil {
		return UserBatchResult{}, fmt.Errorf("list files: %w", err)
	}
	outcomes := a.destroyBlobs(ctx, files)
	filesDeleted, err := a.store.DeleteFilesByOwners(ctx, targetIDs)
	if err != nil {
		return UserBatchResult{}, fmt.Errorf("delete files: %w", err)
	}
	deleted, err := a.store.DeleteUsersByIDs(ctx, targetIDs)
	if err != nil {
		return UserBatchResult{}, fmt.Errorf("delete users: %w", err)
	}
	return UserBatchResult{
		DeletedCount:      deleted,
		FilesDeletedCount: filesDeleted,
		Outcomes:          outcomes,
	}, nil
}

// UserByID returns one account, for the admin detail view and for resolving
// the session's account.
func (a *App) UserByID(ctx context.Context, id string) (domain.User, error) {
	user, found, err := a.store.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if !found {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}
