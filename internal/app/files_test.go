package app

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"filevault/pkg/storage"
)

func TestUploadStoresBlobAndRow(t *testing.T) {
	app, deps := newTestApp(t)
	user := mustRegister(t, app, "Alice", "alice@gmail.com")

	file := mustUpload(t, app, user.ID, "cat.png", "image/png", "pixels")
	if file.ResourceKind != string(storage.KindImage) {
		t.Fatalf("resource kind = %q, want image", file.ResourceKind)
	}
	if file.PublicID == "" {
		t.Fatalf("missing public id")
	}
	if !deps.blobs.Has(storage.KindImage, file.PublicID) {
		t.Fatalf("blob not stored")
	}
	if file.Size != int64(len("pixels")) {
		t.Fatalf("size = %d", file.Size)
	}
}

func TestUploadRejections(t *testing.T) {
	app, _ := newTestApp(t)
	user := mustRegister(t, app, "Alice", "alice@gmail.com")
	ctx := context.Background()

	if _, err := app.Upload(ctx, user.ID, "", "text/plain", strings.NewReader("x"), 1); !errors.Is(err, ErrFilenameEmpty) {
		t.Fatalf("empty filename err = %v", err)
	}
	if _, err := app.Upload(ctx, user.ID, "x.txt", "text/plain", strings.NewReader(""), 0); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("empty file err = %v", err)
	}
	if _, err := app.Upload(ctx, user.ID, "x.bin", "application/octet-stream", strings.NewReader("x"), 11<<20); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("oversize err = %v", err)
	}
}

func TestGetFileScopedToOwner(t *testing.T) {
	app, _ := newTestApp(t)
	alice := mustRegister(t, app, "Alice", "alice@gmail.com")
	bob := mustRegister(t, app, "Bob", "bob@gmail.com")
	ctx := context.Background()

	file := mustUpload(t, app, alice.ID, "secret.txt", "text/plain", "hers")
	if _, err := app.GetFile(ctx, bob.ID, file.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-owner get err = %v, want ErrNotFound", err)
	}
	if _, err := app.GetFile(ctx, alice.ID, file.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
}

func TestRename(t *testing.T) {
	app, _ := newTestApp(t)
	user := mustRegister(t, app, "Alice", "alice@gmail.com")
	ctx := context.Background()

	file := mustUpload(t, app, user.ID, "draft.txt", "text/plain", "v1")
	renamed, err := app.Rename(ctx, user.ID, file.ID, "final.txt")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Filename != "final.txt" {
		t.Fatalf("filename = %q", renamed.Filename)
	}
	if renamed.PublicID != file.PublicID || renamed.OriginalName != file.OriginalName {
		t.Fatalf("rename touched blob identity")
	}
	if _, err := app.Rename(ctx, user.ID, file.ID, "  "); !errors.Is(err, ErrFilenameEmpty) {
		t.Fatalf("blank rename err = %v", err)
	}
	if _, err := app.Rename(ctx, user.ID, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing rename err = %v", err)
	}
}

func TestDeleteFileRemovesBlobAndRow(t *testing.T) {
	app, deps := newTestApp(t)
	user := mustRegister(t, app, "Alice", "alice@gmail.com")
	ctx := context.Background()

	file := mustUpload(t, app, user.ID, "gone.txt", "text/plain", "bye")
	outcome, err := app.DeleteFile(ctx, user.ID, file.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !outcome.OK {
		t.Fatalf("outcome not ok: %+v", outcome)
	}
	if deps.blobs.Has(storage.KindRaw, file.PublicID) {
		t.Fatalf("blob survived")
	}
	if _, err := app.GetFile(ctx, user.ID, file.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("row survived")
	}
}

func TestDeleteFilesBatchIdempotent(t *testing.T) {
	app, _ := newTestApp(t)
	user := mustRegister(t, app, "Alice", "alice@gmail.com")
	ctx := context.Background()

	ids := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		f := mustUpload(t, app, user.ID, fmt.Sprintf("f%d.txt", i), "text/plain", "data")
		ids = append(ids, f.ID)
	}

	res, err := app.DeleteFiles(ctx, user.ID, ids)
	if err != nil {
		t.Fatalf("batch delete: %v", err)
	}
	if res.DeletedCount != 4 {
		t.Fatalf("deletedCount = %d, want 4", res.DeletedCount)
	}
	if len(res.Outcomes) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(res.Outcomes))
	}

	// Re-running with the same ids deletes nothing and fails nothing.
	res, err = app.DeleteFiles(ctx, user.ID, ids)
	if err != nil {
		t.Fatalf("second batch delete: %v", err)
	}
	if res.DeletedCount != 0 || len(res.Outcomes) != 0 {
		t.Fatalf("second run = %+v, want empty", res)
	}
}

func TestDeleteFilesPartialBlobFailure(t *testing.T) {
	app, deps := newTestApp(t)
	user := mustRegister(t, app, "Alice", "alice@gmail.com")
	ctx := context.Background()

	var ids []string
	var poisoned string
	for i := 0; i < 3; i++ {
		f := mustUpload(t, app, user.ID, fmt.Sprintf("f%d.txt", i), "text/plain", "data")
		ids = append(ids, f.ID)
		if i == 1 {
			poisoned = f.PublicID
		}
	}
	deps.blobs.DestroyErr = func(_ storage.ResourceKind, publicID string) error {
		if publicID == poisoned {
			return errors.New("backend exploded")
		}
		return nil
	}

	res, err := app.DeleteFiles(ctx, user.ID, ids)
	if err != nil {
		t.Fatalf("batch delete: %v", err)
	}
	// The failing blob never blocks the row deletions.
	if res.DeletedCount != 3 {
		t.Fatalf("deletedCount = %d, want 3", res.DeletedCount)
	}
	var failed int
	for _, o := range res.Outcomes {
		if !o.OK {
			failed++
			if o.Detail == "" {
				t.Fatalf("failed outcome carries no detail")
			}
		}
	}
	if failed != 1 {
		t.Fatalf("failed outcomes = %d, want 1", failed)
	}
	for _, id := range ids {
		if _, err := app.GetFile(ctx, user.ID, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("row %s survived", id)
		}
	}
}

func TestDeleteFilesSkipsForeignFiles(t *testing.T) {
	app, _ := newTestApp(t)
	alice := mustRegister(t, app, "Alice", "alice@gmail.com")
	bob := mustRegister(t, app, "Bob", "bob@gmail.com")
	ctx := context.Background()

	hers := mustUpload(t, app, alice.ID, "hers.txt", "text/plain", "data")
	his := mustUpload(t, app, bob.ID, "his.txt", "text/plain", "data")

	res, err := app.DeleteFiles(ctx, alice.ID, []string{hers.ID, his.ID})
	if err != nil {
		t.Fatalf("batch delete: %v", err)
	}
	if res.DeletedCount != 1 {
		t.Fatalf("deletedCount = %d, want 1", res.DeletedCount)
	}
	if _, err := app.GetFile(ctx, bob.ID, his.ID); err != nil {
		t.Fatalf("bob's file was deleted: %v", err)
	}
}

func TestDestroyBlobKindFallback(t *testing.T) {
	app, deps := newTestApp(t)
	user := mustRegister(t, app, "Alice", "alice@gmail.com")
	ctx := context.Background()

	// The row claims "image" but the blob actually lives under "raw".
	file := mustUpload(t, app, user.ID, "odd.bin", "application/octet-stream", "data")
	file.ResourceKind = string(storage.KindImage)
	if err := deps.store.SaveFile(ctx, file); err != nil {
		t.Fatalf("save file: %v", err)
	}

	outcome, err := app.DeleteFile(ctx, user.ID, file.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !outcome.OK {
		t.Fatalf("outcome not ok: %+v", outcome)
	}
	if outcome.ResourceKind != string(storage.KindRaw) {
		t.Fatalf("cleanup kind = %q, want raw", outcome.ResourceKind)
	}
	if deps.blobs.Has(storage.KindRaw, file.PublicID) {
		t.Fatalf("blob survived")
	}
}

func TestDestroyBlobAbsentEverywhere(t *testing.T) {
	app, deps := newTestApp(t)
	user := mustRegister(t, app, "Alice", "alice@gmail.com")
	ctx := context.Background()

	file := mustUpload(t, app, user.ID, "ghost.txt", "text/plain", "data")
	if err := deps.blobs.Destroy(ctx, storage.KindRaw, file.PublicID); err != nil {
		t.Fatalf("pre-delete blob: %v", err)
	}

	outcome, err := app.DeleteFile(ctx, user.ID, file.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	// A blob gone under every kind counts as already cleaned up.
	if !outcome.OK {
		t.Fatalf("outcome not ok: %+v", outcome)
	}
}

func zipContents(t *testing.T, buf *bytes.Buffer) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	contents := map[string]string{}
	for _, zf := range zr.File {
		rc, err := zf.Open()
		if err != nil {
			t.Fatalf("open entry: %v", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry: %v", err)
		}
		contents[zf.Name] = string(data)
	}
	return contents
}

func TestBatchDownloadZipsOwnedFiles(t *testing.T) {
	app, _ := newTestApp(t)
	alice := mustRegister(t, app, "Alice", "alice@gmail.com")
	bob := mustRegister(t, app, "Bob", "bob@gmail.com")
	ctx := context.Background()

	f1 := mustUpload(t, app, alice.ID, "a.txt", "text/plain", "alpha")
	f2 := mustUpload(t, app, alice.ID, "b.txt", "text/plain", "beta")
	foreign := mustUpload(t, app, bob.ID, "c.txt", "text/plain", "gamma")

	batch, err := app.PrepareBatchDownload(ctx, alice.ID, []string{f1.ID, f2.ID, foreign.ID})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if batch.RedirectURL != "" {
		t.Fatalf("unexpected redirect for multi-file batch: %q", batch.RedirectURL)
	}
	if len(batch.Files) != 2 {
		t.Fatalf("files = %d, want 2 (foreign file excluded)", len(batch.Files))
	}

	var buf bytes.Buffer
	if err := app.WriteZip(ctx, batch.Files, &buf); err != nil {
		t.Fatalf("zip: %v", err)
	}
	contents := zipContents(t, &buf)
	if len(contents) != 2 {
		t.Fatalf("zip entries = %d, want 2", len(contents))
	}
	if contents["a.txt"] != "alpha" || contents["b.txt"] != "beta" {
		t.Fatalf("zip contents = %v", contents)
	}
}

func TestBatchDownloadSingleFileRedirects(t *testing.T) {
	app, _ := newTestApp(t)
	user := mustRegister(t, app, "Alice", "alice@gmail.com")
	ctx := context.Background()

	doc := mustUpload(t, app, user.ID, "doc.pdf", "application/pdf", "content")
	batch, err := app.PrepareBatchDownload(ctx, user.ID, []string{doc.ID})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if batch.RedirectURL == "" {
		t.Fatalf("expected redirect for single non-zip file")
	}

	// A single file that already is a zip gets archived, not redirected.
	archive := mustUpload(t, app, user.ID, "bundle.zip", "application/zip", "zipbytes")
	batch, err = app.PrepareBatchDownload(ctx, user.ID, []string{archive.ID})
	if err != nil {
		t.Fatalf("prepare zip file: %v", err)
	}
	if batch.RedirectURL != "" || len(batch.Files) != 1 {
		t.Fatalf("zip-named file not archived: %+v", batch)
	}

	// No owned files at all is a not-found, not an empty archive.
	if _, err := app.PrepareBatchDownload(ctx, user.ID, []string{"ghost"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing files err = %v, want ErrNotFound", err)
	}
}

func TestWriteZipAddsErrorPlaceholders(t *testing.T) {
	app, deps := newTestApp(t)
	user := mustRegister(t, app, "Alice", "alice@gmail.com")
	ctx := context.Background()

	good := mustUpload(t, app, user.ID, "a.txt", "text/plain", "alpha")
	broken := mustUpload(t, app, user.ID, "b.txt", "text/plain", "beta")

	// Drop the second blob behind the row's back so the fetch fails.
	if err := deps.blobs.Destroy(ctx, storage.ResourceKind(broken.ResourceKind), broken.PublicID); err != nil {
		t.Fatalf("drop blob: %v", err)
	}

	batch, err := app.PrepareBatchDownload(ctx, user.ID, []string{good.ID, broken.ID})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	var buf bytes.Buffer
	if err := app.WriteZip(ctx, batch.Files, &buf); err != nil {
		t.Fatalf("zip: %v", err)
	}
	contents := zipContents(t, &buf)
	if len(contents) != 2 {
		t.Fatalf("zip entries = %d, want 2", len(contents))
	}
	if contents["a.txt"] != "alpha" {
		t.Fatalf("zip contents = %v", contents)
	}
	if got := contents["ERROR-b.txt.txt"]; got != "Failed to fetch b.txt\n" {
		t.Fatalf("placeholder entry = %q", got)
	}
}

func TestWriteZipDedupesNames(t *testing.T) {
	app, _ := newTestApp(t)
	user := mustRegister(t, app, "Alice", "alice@gmail.com")
	ctx := context.Background()

	f1 := mustUpload(t, app, user.ID, "report.pdf", "application/pdf", "one")
	f2 := mustUpload(t, app, user.ID, "report.pdf", "application/pdf", "two")

	batch, err := app.PrepareBatchDownload(ctx, user.ID, []string{f1.ID, f2.ID})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	var buf bytes.Buffer
	if err := app.WriteZip(ctx, batch.Files, &buf); err != nil {
		t.Fatalf("zip: %v", err)
	}
	names := zipContents(t, &buf)
	if _, ok := names["report.pdf"]; !ok {
		t.Fatalf("zip names = %v", names)
	}
	if _, ok := names["report (1).pdf"]; !ok {
		t.Fatalf("zip names = %v", names)
	}
}

func TestDownloadURL(t *testing.T) {
	app, _ := newTestApp(t)
	user := mustRegister(t, app, "Alice", "alice@gmail.com")
	ctx := context.Background()

	file := mustUpload(t, app, user.ID, "doc.pdf", "application/pdf", "content")
	url, err := app.DownloadURL(ctx, user.ID, file.ID)
	if err != nil {
		t.Fatalf("download url: %v", err)
	}
	if !strings.Contains(url, file.PublicID) {
		t.Fatalf("url %q does not reference the blob", url)
	}
}
