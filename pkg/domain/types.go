package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Verified     bool      `json:"verified"`
	Banned       bool      `json:"banned"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// File is the metadata record of one uploaded object. PublicID is the
// identifier of the blob in object storage; a file without a PublicID has no
// external resource to clean up.
type File struct {
	ID           string            `json:"id"`
	Filename     string            `json:"filename"`
	OriginalName string            `json:"originalName,omitempty"`
	MimeType     string            `json:"mimeType,omitempty"`
	ResourceKind string            `json:"resourceKind,omitempty"`
	PublicID     string            `json:"-"`
	Size         int64             `json:"size"`
	OwnerID      string            `json:"ownerId"`
	Metadata     map[string]string `json:"-"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// UserListItem is one row of the admin user listing. FileCount and
// TotalSizeBytes are nil for ADMIN rows (admins do not own quota-tracked
// files) and 0, not nil, for users without files.
type UserListItem struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           UserRole  `json:"role"`
	Verified       bool      `json:"verified"`
	Banned         bool      `json:"banned"`
	CreatedAt      time.Time `json:"createdAt"`
	FileCount      *int64    `json:"fileCount"`
	TotalSizeBytes *int64    `json:"totalSizeBytes"`
}

// UserTotals holds sitewide counters, never scoped to a search filter.
type UserTotals struct {
	Admins   int64 `json:"admins"`
	Verified int64 `json:"verified"`
	Banned   int64 `json:"banned"`
}

// StorageUsage reports consumption against the configured ceiling.
type StorageUsage struct {
	UsedBytes      int64 `json:"usedBytes"`
	RemainingBytes int64 `json:"remainingBytes"`
	MaxBytes       int64 `json:"maxBytes"`
	UsedPercent    int   `json:"usedPercent"`
}

// CleanupOutcome records the blob-cleanup result for one file in a batch.
// OK false never aborts a batch; the row is deleted regardless.
type CleanupOutcome struct {
	ID           string `json:"id"`
	OK           bool   `json:"ok"`
	ResourceKind string `json:"resourceKind,omitempty"`
	Detail       string `json:"detail,omitempty"`
}
