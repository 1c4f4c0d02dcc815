package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"filevault/pkg/domain"
	"filevault/pkg/store"
)

type filePage struct {
	Files   []domain.File `json:"files"`
	Total   int64         `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"perPage"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request, user domain.User) {
	q := r.URL.Query().Get("q")
	page, perPage := store.NormalizePage(queryInt(r, "page", 1), queryInt(r, "perPage", 10))
	files, total, err := s.app.ListFiles(r.Context(), user.ID, q, page, perPage)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, filePage{
		Files:   files,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowRate(w, r, s.uploadLimiter, "too many uploads, retry later") {
		s.audit(r, "file.upload", "rate_limited", "user_id", user.ID)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "files field is required")
		return
	}

	uploaded := make([]domain.File, 0, len(headers))
	for _, header := range headers {
		part, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file part")
			return
		}
		file, err := s.app.Upload(r.Context(), user.ID, header.Filename, header.Header.Get("Content-Type"), part, header.Size)
		part.Close()
		if err != nil {
			s.audit(r, "file.upload", "fail", "user_id", user.ID, "reason", err.Error())
			s.writeAppError(w, r, err)
			return
		}
		uploaded = append(uploaded, file)
	}
	s.audit(r, "file.upload", "success", "user_id", user.ID, "count", len(uploaded))
	writeJSON(w, http.StatusCreated, map[string]any{"files": uploaded})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request, user domain.User) {
	file, err := s.app.GetFile(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": file})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, user domain.User) {
	url, err := s.app.DownloadURL(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

type renameRequest struct {
	Filename string `json:"filename"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	file, err := s.app.Rename(r.Context(), user.ID, r.PathValue("id"), req.Filename)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": file})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request, user domain.User) {
	outcome, err := s.app.DeleteFile(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "file.delete", "success", "user_id", user.ID, "file_id", outcome.ID)
	writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome})
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleDeleteFilesBatch(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.app.DeleteFiles(r.Context(), user.ID, req.IDs)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "file.batch_delete", "success", "user_id", user.ID, "deleted", res.DeletedCount)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleZipDownload(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	batch, err := s.app.PrepareBatchDownload(r.Context(), user.ID, req.IDs)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if batch.RedirectURL != "" {
		s.audit(r, "file.zip", "redirect", "user_id", user.ID)
		http.Redirect(w, r, batch.RedirectURL, http.StatusFound)
		return
	}
	name := "files-" + time.Now().UTC().Format("20060102-150405") + ".zip"
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := s.app.WriteZip(r.Context(), batch.Files, w); err != nil {
		// Headers are gone by now; the truncated stream is all we can signal.
		s.audit(r, "file.zip", "fail", "user_id", user.ID, "reason", err.Error())
		return
	}
	s.audit(r, "file.zip", "success", "user_id", user.ID, "count", len(batch.Files))
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
