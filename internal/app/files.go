package app

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"filevault/internal/util"
	"filevault/pkg/domain"
	"filevault/pkg/storage"
)

// cleanupConcurrency bounds parallel blob deletions in a batch.
const cleanupConcurrency = 8

const presignExpiry = 15 * time.Minute

// Upload stores the blob first, then the metadata row. When the row cannot
// be written the blob is destroyed again so no orphan remains.
func (a *App) Upload(ctx context.Context, ownerID, filename, mimeType string, r io.Reader, size int64) (domain.File, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return domain.File{}, ErrFilenameEmpty
	}
	if size <= 0 {
		return domain.File{}, ErrEmptyFile
	}
	if size > a.maxUploadBytes {
		return domain.File{}, ErrFileTooLarge
	}

	kind := storage.KindForMime(mimeType)
	publicID := uuid.NewString()
	put, err := a.blobs.Put(ctx, kind, publicID, r, size, mimeType)
	if err != nil {
		return domain.File{}, fmt.Errorf("store blob: %w", err)
	}

	now := time.Now().UTC()
	file := domain.File{
		ID:           util.NewID(),
		Filename:     filename,
		OriginalName: filename,
		MimeType:     mimeType,
		ResourceKind: string(kind),
		PublicID:     publicID,
		Size:         size,
		OwnerID:      ownerID,
		Metadata:     map[string]string{"etag": put.ETag},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveFile(ctx, file); err != nil {
		if derr := a.blobs.Destroy(ctx, kind, publicID); derr != nil {
			util.LoggerFromContext(ctx).Warn("orphan blob cleanup failed",
				"error", derr, "public_id", publicID)
		}
		return domain.File{}, fmt.Errorf("save file: %w", err)
	}
	return file, nil
}

// ListFiles returns one page of the owner's files matching the filename search.
func (a *App) ListFiles(ctx context.Context, ownerID, q string, page, perPage int) ([]domain.File, int64, error) {
	return a.store.ListFilesPage(ctx, ownerID, q, page, perPage)
}

// GetFile returns one file, scoped to its owner.
func (a *App) GetFile(ctx context.Context, ownerID, fileID string) (domain.File, error) {
	file, found, err := a.store.GetFileByID(ctx, fileID)
	if err != nil {
		return domain.File{}, fmt.Errorf("get file: %w", err)
	}
	if !found || file.OwnerID != ownerID {
		return domain.File{}, ErrNotFound
	}
	return file, nil
}

// Rename changes the display filename. The blob and its locator are untouched.
func (a *App) Rename(ctx context.Context, ownerID, fileID, filename string) (domain.File, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return domain.File{}, ErrFilenameEmpty
	}
	file, err := a.GetFile(ctx, ownerID, fileID)
	if err != nil {
		return domain.File{}, err
	}
	file.Filename = filename
	file.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveFile(ctx, file); err != nil {
		return domain.File{}, fmt.Errorf("save file: %w", err)
	}
	return file, nil
}

// DownloadURL returns a presigned link that serves the blob with a
// content-disposition carrying the display filename.
func (a *App) DownloadURL(ctx context.Context, ownerID, fileID string) (string, error) {
	file, err := a.GetFile(ctx, ownerID, fileID)
	if err != nil {
		return "", err
	}
	url, err := a.blobs.PresignGet(ctx, storage.ResourceKind(file.ResourceKind), file.PublicID, file.Filename, presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url, nil
}

// DeleteFile removes one owned file: blob first, best effort, then the row.
func (a *App) DeleteFile(ctx context.Context, ownerID, fileID string) (domain.CleanupOutcome, error) {
	file, err := a.GetFile(ctx, ownerID, fileID)
	if err != nil {
		return domain.CleanupOutcome{}, err
	}
	outcome := a.destroyBlob(ctx, file)
	if _, err := a.store.DeleteFilesByIDs(ctx, []string{file.ID}, ownerID); err != nil {
		return domain.CleanupOutcome{}, fmt.Errorf("delete file row: %w", err)
	}
	return outcome, nil
}

// BatchResult reports a batch deletion: how many rows went away and the
// per-item blob cleanup outcomes.
type BatchResult struct {
	DeletedCount int64                   `json:"deletedCount"`
	Outcomes     []domain.CleanupOutcome `json:"outcomes"`
}

// DeleteFiles removes a set of owned files. Ids that do not resolve to an
// owned file are skipped, which makes re-running a batch harmless. Blob
// cleanup runs concurrently but bounded; a blob failure is recorded in the
// outcome and never blocks the row deletion.
func (a *App) DeleteFiles(ctx context.Context, ownerID string, ids []string) (BatchResult, error) {
	if len(ids) == 0 {
		return BatchResult{}, ErrNoIDs
	}
	files, err := a.store.ListFilesByIDs(ctx, ids, ownerID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list files: %w", err)
	}
	if len(files) == 0 {
		return BatchResult{Outcomes: []domain.CleanupOutcome{}}, nil
	}

	outcomes := a.destroyBlobs(ctx, files)

	ownedIDs := make([]string, 0, len(files))
	for _, f := range files {
		ownedIDs = append(ownedIDs, f.ID)
	}
	deleted, err := a.store.DeleteFilesByIDs(ctx, ownedIDs, ownerID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("delete file rows: %w", err)
	}
	return BatchResult{DeletedCount: deleted, Outcomes: outcomes}, nil
}

// destroyBlobs fans the per-file cleanup out over a bounded worker group.
// Outcomes come back in the order of the input slice.
func (a *App) destroyBlobs(ctx context.Context, files []domain.File) []domain.CleanupOutcome {
	outcomes := make([]domain.CleanupOutcome, len(files))
	var g errgroup.Group
	g.SetLimit(cleanupConcurrency)
	for i, file := range files {
		g.Go(func() error {
			outcomes[i] = a.destroyBlob(ctx, file)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// destroyBlob walks the resource-kind chain: the declared kind first, then
// the generic fallbacks. A "wrong kind" rejection moves on to the next kind;
// any other error stops the chain and is recorded as a failed outcome. A
// blob absent under every kind counts as already cleaned up.
func (a *App) destroyBlob(ctx context.Context, file domain.File) domain.CleanupOutcome {
	outcome := domain.CleanupOutcome{ID: file.ID, OK: true}
	if file.PublicID == "" {
		return outcome
	}
	for _, kind := range storage.KindChain(storage.ResourceKind(file.ResourceKind), file.MimeType) {
		err := a.blobs.Destroy(ctx, kind, file.PublicID)
		if err == nil {
			outcome.ResourceKind = string(kind)
			return outcome
		}
		if errors.Is(err, storage.ErrWrongResourceKind) {
			continue
		}
		outcome.OK = false
		outcome.Detail = err.Error()
		return outcome
	}
	outcome.Detail = "blob already absent"
	return outcome
}

// BatchDownload is the resolved form of a batch download request: either a
// presigned URL to redirect to, or the set of files to stream as an archive.
type BatchDownload struct {
	RedirectURL string
	Files       []domain.File
}

// PrepareBatchDownload resolves ids against the owner's files. Exactly one
// matching file that is not itself a zip short-circuits to its presigned
// URL; everything else goes through the archive path. No matching files is
// a not-found, not an empty archive.
func (a *App) PrepareBatchDownload(ctx context.Context, ownerID string, ids []string) (BatchDownload, error) {
	if len(ids) == 0 {
		return BatchDownload{}, ErrNoIDs
	}
	files, err := a.store.ListFilesByIDs(ctx, ids, ownerID)
	if err != nil {
		return BatchDownload{}, fmt.Errorf("list files: %w", err)
	}
	if len(files) == 0 {
		return BatchDownload{}, ErrNotFound
	}
	if len(files) == 1 && !strings.HasSuffix(strings.ToLower(files[0].Filename), ".zip") {
		file := files[0]
		url, err := a.blobs.PresignGet(ctx, storage.ResourceKind(file.ResourceKind), file.PublicID, file.Filename, presignExpiry)
		if err != nil {
			return BatchDownload{}, fmt.Errorf("presign download: %w", err)
		}
		return BatchDownload{RedirectURL: url}, nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	return BatchDownload{Files: files}, nil
}

// WriteZip streams files into w as a zip archive. A blob that cannot be
// fetched is not dropped: the archive gets an ERROR-<name>.txt placeholder
// in its place so the recipient can see which entries failed.
func (a *App) WriteZip(ctx context.Context, files []domain.File, w io.Writer) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]int, len(files))
	for _, file := range files {
		rc, err := a.blobs.Get(ctx, storage.ResourceKind(file.ResourceKind), file.PublicID)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("zip entry unfetchable",
				"error", err, "file_id", file.ID)
			name := dedupeName(seen, "ERROR-"+file.Filename+".txt")
			if werr := writeZipEntry(zw, name, file.UpdatedAt, strings.NewReader("Failed to fetch "+file.Filename+"\n")); werr != nil {
				return werr
			}
			continue
		}
		name := dedupeName(seen, file.Filename)
		err = writeZipEntry(zw, name, file.UpdatedAt, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeZipEntry(zw *zip.Writer, name string, modified time.Time, r io.Reader) error {
	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("create zip entry: %w", err)
	}
	if _, err := io.Copy(entry, r); err != nil {
		return fmt.Errorf("write zip entry: %w", err)
	}
	return nil
}

// dedupeName suffixes repeated display names so zip entries stay distinct.
func dedupeName(seen map[string]int, name string) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	dot := strings.LastIndex(name, ".")
	if dot <= 0 {
		return fmt.Sprintf("%s (%d)", name, n)
	}
	return fmt.Sprintf("%s (%d)%s", name[:dot], n, name[dot:])
}
