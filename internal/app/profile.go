package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"filevault/pkg/auth"
	"filevault/pkg/domain"
)

// Profile bundles the account with its storage usage.
type Profile struct {
	User  domain.User         `json:"user"`
	Usage domain.StorageUsage `json:"storage"`
}

// GetProfile returns the account and its quota usage.
func (a *App) GetProfile(ctx context.Context, userID string) (Profile, error) {
	user, found, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("get user: %w", err)
	}
	if !found {
		return Profile{}, ErrNotFound
	}
	usage, err := a.Usage(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{User: user, Usage: usage}, nil
}

// ProfileUpdate carries the optional profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name            *string
	CurrentPassword string
	NewPassword     string
}

// UpdateProfile renames the account and, when a new password is supplied,
// rotates it after checking the current one.
func (a *App) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (domain.User, error) {
	user, found, err := a.store.GetUserByID(ctx, userID)
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
	if upd.NewPassword != "" {
		if !auth.CheckPassword(upd.CurrentPassword, user.PasswordHash) {
			return domain.User{}, ErrInvalidCredentials
		}
		if err := auth.ValidatePassword(upd.NewPassword); err != nil {
			return domain.User{}, err
		}
		hash, err := auth.HashPassword(upd.NewPassword)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
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

// CascadeResult reports an account removal: how many file rows went with it
// and the per-blob cleanup outcomes.
type CascadeResult struct {
	FilesDeletedCount int64                   `json:"filesDeletedCount"`
	Outcomes          []domain.CleanupOutcome `json:"outcomes"`
}

// DeleteAccount removes the account with a full cascade: blobs are destroyed
// best effort, then file rows and the user row are removed. Blob failures
// never keep the account alive.
func (a *App) DeleteAccount(ctx context.Context, userID string) (CascadeResult, error) {
	_, found, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return CascadeResult{}, fmt.Errorf("get user: %w", err)
	}
	if !found {
		return CascadeResult{}, ErrNotFound
	}

	files, err := a.store.ListFilesByOwners(ctx, []string{userID})
	if err != nil {
		return CascadeResult{}, fmt.Errorf("list files: %w", err)
	}
	outcomes := a.destroyBlobs(ctx, files)
	filesDeleted, err := a.store.DeleteFilesByOwners(ctx, []string{userID})
	if err != nil {
		return CascadeResult{}, fmt.Errorf("delete files: %w", err)
	}
	if _, err := a.store.DeleteUser(ctx, userID); err != nil {
		return CascadeResult{}, fmt.Errorf("delete user: %w", err)
	}
	return CascadeResult{FilesDeletedCount: filesDeleted, Outcomes: outcomes}, nil
}
