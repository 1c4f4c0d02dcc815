package server

import (
	"net/http"

	"filevault/internal/app"
	"filevault/pkg/domain"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	q := r.URL.Query().Get("q")
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "perPage", 10)
	listing, err := s.app.ListUsers(r.Context(), q, page, perPage)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, _ domain.User) {
	user, err := s.app.UserByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

type userUpdateRequest struct {
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	Verified *bool   `json:"verified"`
	Banned   *bool   `json:"banned"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, admin domain.User) {
	var req userUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.UpdateUser(r.Context(), r.PathValue("id"), app.UserUpdate{
		Name:     req.Name,
		Role:     req.Role,
		Verified: req.Verified,
		Banned:   req.Banned,
	})
	if err != nil {
		s.audit(r, "admin.user.update", "fail", "admin_id", admin.ID, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.user.update", "success", "admin_id", admin.ID, "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, admin domain.User) {
	res, err := s.app.DeleteUserByAdmin(r.Context(), admin.ID, r.PathValue("id"))
	if err != nil {
		s.audit(r, "admin.user.delete", "fail", "admin_id", admin.ID, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.user.delete", "success", "admin_id", admin.ID, "user_id", r.PathValue("id"), "files_deleted", res.FilesDeletedCount)
	writeJSON(w, http.StatusOK, res)
}

type batchBanRequest struct {
	IDs    []string `json:"ids"`
	Banned bool     `json:"banned"`
}

func (s *Server) handleBatchBan(w http.ResponseWriter, r *http.Request, admin domain.User) {
	var req batchBanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	n, err := s.app.SetUsersBanned(r.Context(), req.IDs, req.Banned)
	if err != nil {
		s.audit(r, "admin.user.batch_ban", "fail", "admin_id", admin.ID, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.user.batch_ban", "success", "admin_id", admin.ID, "banned", req.Banned, "count", n)
	writeJSON(w, http.StatusOK, map[string]any{"updatedCount": n})
}

func (s *Server) handleBatchDeleteUsers(w http.ResponseWriter, r *http.Request, admin domain.User) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.app.DeleteUsers(r.Context(), req.IDs)
	if err != nil {
		s.audit(r, "admin.user.batch_delete", "fail", "admin_id", admin.ID, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.user.batch_delete", "success", "admin_id", admin.ID, "deleted", res.DeletedCount)
	writeJSON(w, http.StatusOK, res)
}
