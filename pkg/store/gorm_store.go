package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"filevault/pkg/domain"
)

const migrateLockID int64 = 41224122

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent replicas do not race on schema changes.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &FileModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "password_hash", "role", "verified", "banned", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// DeleteUser removes a user row, reporting whether a row was deleted.
func (s *GormStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&UserModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type userListRow struct {
	ID             string
	Name           string
	Email          string
	Role           string
	Verified       bool
	Banned         bool
	CreatedAt      time.Time
	FileCount      *int64
	TotalSizeBytes *int64
}

// ListUsersPage returns one page of users matching the search text, newest
// first, each joined with per-owner file statistics in a single round trip.
// The file aggregates are null for ADMIN rows and 0 for users without files.
func (s *GormStore) ListUsersPage(ctx context.Context, q string, page, perPage int) ([]domain.UserListItem, int64, error) {
	page, perPage = NormalizePage(page, perPage)

	filtered := func() *gorm.DB {
		tx := s.db.WithContext(ctx).Model(&UserModel{})
		if strings.TrimSpace(q) != "" {
			pattern := "%" + escapeLike(strings.TrimSpace(q)) + "%"
			tx = tx.Where(`users.name ILIKE ? ESCAPE '\' OR users.email ILIKE ? ESCAPE '\'`, pattern, pattern)
		}
		return tx
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	var rows []userListRow
	err := filtered().
		Select("users.id, users.name, users.email, users.role, users.verified, users.banned, users.created_at, stats.file_count, stats.total_size_bytes").
		Joins("LEFT JOIN (SELECT owner_id, COUNT(*) AS file_count, COALESCE(SUM(size), 0) AS total_size_bytes FROM files GROUP BY owner_id) stats ON stats.owner_id = users.id").
		Order("users.created_at DESC, users.id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	items := make([]domain.UserListItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, userItemFromRow(row))
	}
	return items, total, nil
}

func userItemFromRow(row userListRow) domain.UserListItem {
	item := domain.UserListItem{
		ID:        row.ID,
		Name:      row.Name,
		Email:     row.Email,
		Role:      domain.UserRole(row.Role),
		Verified:  row.Verified,
		Banned:    row.Banned,
		CreatedAt: row.CreatedAt,
	}
	if item.Role == domain.RoleAdmin {
		return item
	}
	var count, size int64
	if row.FileCount != nil {
		count = *row.FileCount
	}
	if row.TotalSizeBytes != nil {
		size = *row.TotalSizeBytes
	}
	item.FileCount = &count
	item.TotalSizeBytes = &size
	return item
}

// UserTotals returns sitewide admin/verified/banned counters, independent of
// any search filter.
func (s *GormStore) UserTotals(ctx context.Context) (domain.UserTotals, error) {
	var totals domain.UserTotals
	base := s.db.WithContext(ctx).Model(&UserModel{})
	if err := base.Session(&gorm.Session{}).Where("role = ?", string(domain.RoleAdmin)).Count(&totals.Admins).Error; err != nil {
		return domain.UserTotals{}, err
	}
	if err := base.Session(&gorm.Session{}).Where("verified = ?", true).Count(&totals.Verified).Error; err != nil {
		return domain.UserTotals{}, err
	}
	if err := base.Session(&gorm.Session{}).Where("banned = ?", true).Count(&totals.Banned).Error; err != nil {
		return domain.UserTotals{}, err
	}
	return totals, nil
}

// ListUsersByIDs returns users matching the ids, optionally filtered by role.
func (s *GormStore) ListUsersByIDs(ctx context.Context, ids []string, role domain.UserRole) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tx := s.db.WithContext(ctx).Where("id IN ?", ids)
	if role != "" {
		tx = tx.Where("role = ?", string(role))
	}
	var models []UserModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(models))
	for _, m := range models {
		users = append(users, userFromModel(m))
	}
	return users, nil
}

// SetUsersBanned flips the banned flag on USER rows only; ADMIN rows never
// match, so they are silently skipped.
func (s *GormStore) SetUsersBanned(ctx context.Context, ids []string, banned bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id IN ? AND role = ?", ids, string(domain.RoleUser)).
		Updates(map[string]any{"banned": banned, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// DeleteUsersByIDs removes the given user rows.
func (s *GormStore) DeleteUsersByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Delete(&UserModel{}, "id IN ?", ids)
	return res.RowsAffected, res.Error
}

// SaveFile stores or updates a file record.
func (s *GormStore) SaveFile(ctx context.Context, f domain.File) error {
	model := fileToModel(f)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"filename", "original_name", "mime_type", "resource_kind", "public_id", "size", "owner_id", "metadata", "updated_at"}),
	}).Create(&model).Error
}

// GetFileByID retrieves a file record.
func (s *GormStore) GetFileByID(ctx context.Context, id string) (domain.File, bool, error) {
	var model FileModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.File{}, false, nil
		}
		return domain.File{}, false, err
	}
	return fileFromModel(model), true, nil
}

// ListFilesPage returns one page of an owner's files matching the filename
// search, newest first with a deterministic id tie-break.
func (s *GormStore) ListFilesPage(ctx context.Context, ownerID, q string, page, perPage int) ([]domain.File, int64, error) {
	page, perPage = NormalizePage(page, perPage)

	filtered := func() *gorm.DB {
		tx := s.db.WithContext(ctx).Model(&FileModel{}).Where("owner_id = ?", ownerID)
		if strings.TrimSpace(q) != "" {
			tx = tx.Where(`filename ILIKE ? ESCAPE '\'`, "%"+escapeLike(strings.TrimSpace(q))+"%")
		}
		return tx
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	var models []FileModel
	err := filtered().
		Order("created_at DESC, id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&models).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	files := make([]domain.File, 0, len(models))
	for _, m := range models {
		files = append(files, fileFromModel(m))
	}
	return files, total, nil
}

// ListFilesByIDs returns files matching the ids, scoped to an owner unless
// ownerID is empty.
func (s *GormStore) ListFilesByIDs(ctx context.Context, ids []string, ownerID string) ([]domain.File, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tx := s.db.WithContext(ctx).Where("id IN ?", ids)
	if ownerID != "" {
		tx = tx.Where("owner_id = ?", ownerID)
	}
	var models []FileModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	files := make([]domain.File, 0, len(models))
	for _, m := range models {
		files = append(files, fileFromModel(m))
	}
	return files, nil
}

// ListFilesByOwners returns every file owned by any of the given users.
func (s *GormStore) ListFilesByOwners(ctx context.Context, ownerIDs []string) ([]domain.File, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	var models []FileModel
	if err := s.db.WithContext(ctx).Where("owner_id IN ?", ownerIDs).Find(&models).Error; err != nil {
		return nil, err
	}
	files := make([]domain.File, 0, len(models))
	for _, m := range models {
		files = append(files, fileFromModel(m))
	}
	return files, nil
}

// DeleteFilesByIDs removes file rows by id, scoped to an owner unless
// ownerID is empty.
func (s *GormStore) DeleteFilesByIDs(ctx context.Context, ids []string, ownerID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx := s.db.WithContext(ctx).Where("id IN ?", ids)
	if ownerID != "" {
		tx = tx.Where("owner_id = ?", ownerID)
	}
	res := tx.Delete(&FileModel{})
	return res.RowsAffected, res.Error
}

// DeleteFilesByOwners removes every file row owned by the given users.
func (s *GormStore) DeleteFilesByOwners(ctx context.Context, ownerIDs []string) (int64, error) {
	if len(ownerIDs) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Delete(&FileModel{}, "owner_id IN ?", ownerIDs)
	return res.RowsAffected, res.Error
}

// SumFileSizes totals the stored bytes of one owner, treating NULL as 0.
func (s *GormStore) SumFileSizes(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&FileModel{}).
		Where("owner_id = ?", ownerID).
		Select("COALESCE(SUM(size), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// escapeLike escapes LIKE metacharacters so search text matches literally.
func escapeLike(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Verified:     u.Verified,
		Banned:       u.Banned,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		Verified:     m.Verified,
		Banned:       m.Banned,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func fileToModel(f domain.File) FileModel {
	var raw datatypes.JSON
	if len(f.Metadata) > 0 {
		b, _ := json.Marshal(f.Metadata)
		raw = datatypes.JSON(b)
	}
	return FileModel{
		ID:           f.ID,
		Filename:     f.Filename,
		OriginalName: f.OriginalName,
		MimeType:     f.MimeType,
		ResourceKind: f.ResourceKind,
		PublicID:     f.PublicID,
		Size:         f.Size,
		OwnerID:      f.OwnerID,
		Metadata:     raw,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

func fileFromModel(m FileModel) domain.File {
	var meta map[string]string
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return domain.File{
		ID:           m.ID,
		Filename:     m.Filename,
		OriginalName: m.OriginalName,
		MimeType:     m.MimeType,
		ResourceKind: m.ResourceKind,
		PublicID:     m.PublicID,
		Size:         m.Size,
		OwnerID:      m.OwnerID,
		Metadata:     meta,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
