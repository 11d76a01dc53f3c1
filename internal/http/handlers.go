package http

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"time"

	"bil/internal/attachment"
	"bil/internal/core"
)

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "pong")
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady verifies that storage answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{
		"rate_limiter": map[string]any{"active_clients": s.rateLimiter.ActiveClients()},
	}

	if err := s.svc.Ping(ctx); err != nil {
		checks["storage"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	includeDeleted, err := queryBool(r, "include_deleted")
	if err != nil {
		s.writeError(w, r, "list_projects", err)
		return
	}
	projects, err := s.svc.ListProjects(r.Context(), includeDeleted)
	if err != nil {
		s.writeError(w, r, "list_projects", err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body nameBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, "create_project", err)
		return
	}
	id, err := s.svc.CreateProject(r.Context(), body.Name)
	if err != nil {
		s.writeError(w, r, "create_project", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id")
	if err != nil {
		s.writeError(w, r, "get_project", err)
		return
	}
	project, err := s.svc.GetProject(r.Context(), ids[0])
	if err != nil {
		s.writeError(w, r, "get_project", err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleRenameProject(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id")
	if err != nil {
		s.writeError(w, r, "rename_project", err)
		return
	}
	var body nameBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, "rename_project", err)
		return
	}
	if err := s.svc.RenameProject(r.Context(), ids[0], body.Name); err != nil {
		s.writeError(w, r, "rename_project", err)
		return
	}
	writeOK(w)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id")
	if err == nil {
		err = s.svc.DeleteProject(r.Context(), ids[0])
	}
	if err != nil {
		s.writeError(w, r, "delete_project", err)
		return
	}
	writeOK(w)
}

func (s *Server) handleRestoreProject(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id")
	if err == nil {
		err = s.svc.RestoreProject(r.Context(), ids[0])
	}
	if err != nil {
		s.writeError(w, r, "restore_project", err)
		return
	}
	writeOK(w)
}

func (s *Server) handleListPaygroups(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id")
	if err != nil {
		s.writeError(w, r, "list_paygroups", err)
		return
	}
	groups, err := s.svc.ListPaygroups(r.Context(), ids[0])
	if err != nil {
		s.writeError(w, r, "list_paygroups", err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleAddPaygroup(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id")
	if err != nil {
		s.writeError(w, r, "add_paygroup", err)
		return
	}
	var body nameBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, "add_paygroup", err)
		return
	}
	id, err := s.svc.AddPaygroup(r.Context(), ids[0], body.Name)
	if err != nil {
		s.writeError(w, r, "add_paygroup", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (s *Server) handleRenamePaygroup(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "gid")
	if err != nil {
		s.writeError(w, r, "rename_paygroup", err)
		return
	}
	var body nameBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, "rename_paygroup", err)
		return
	}
	if err := s.svc.RenamePaygroup(r.Context(), ids[0], ids[1], body.Name); err != nil {
		s.writeError(w, r, "rename_paygroup", err)
		return
	}
	writeOK(w)
}

func (s *Server) handleDeletePaygroup(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "gid")
	if err == nil {
		err = s.svc.DeletePaygroup(r.Context(), ids[0], ids[1])
	}
	if err != nil {
		s.writeError(w, r, "delete_paygroup", err)
		return
	}
	writeOK(w)
}

func (s *Server) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "gid")
	if err != nil {
		s.writeError(w, r, "add_payment", err)
		return
	}
	var in core.PaymentInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, "add_payment", err)
		return
	}
	id, err := s.svc.AddPayment(r.Context(), ids[0], ids[1], in)
	if err != nil {
		s.writeError(w, r, "add_payment", err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

func (s *Server) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "gid", "pid")
	if err != nil {
		s.writeError(w, r, "update_payment", err)
		return
	}
	var in core.PaymentInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, "update_payment", err)
		return
	}
	if err := s.svc.UpdatePayment(r.Context(), ids[0], ids[1], ids[2], in); err != nil {
		s.writeError(w, r, "update_payment", err)
		return
	}
	writeOK(w)
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "gid", "pid")
	if err == nil {
		err = s.svc.DeletePayment(r.Context(), ids[0], ids[1], ids[2])
	}
	if err != nil {
		s.writeError(w, r, "delete_payment", err)
		return
	}
	writeOK(w)
}

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "gid", "pid")
	if err != nil {
		s.writeError(w, r, "upload_attachment", err)
		return
	}
	file, err := uploadedFile(w, r, s.svc.MaxAttachmentBytes())
	if err != nil {
		s.writeError(w, r, "upload_attachment", err)
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	if _, err := s.svc.UploadAttachment(r.Context(), ids[0], ids[1], ids[2], file); err != nil {
		s.writeError(w, r, "upload_attachment", err)
		return
	}
	writeOK(w)
}

func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "gid", "pid")
	if err != nil {
		s.writeError(w, r, "get_attachment", err)
		return
	}
	f, name, err := s.svc.OpenAttachment(r.Context(), ids[0], ids[1], ids[2])
	if err != nil {
		s.writeError(w, r, "get_attachment", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.writeError(w, r, "get_attachment", err)
		return
	}
	w.Header().Set("Content-Type", attachment.ContentType(name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "gid", "pid")
	if err == nil {
		err = s.svc.DeleteAttachment(r.Context(), ids[0], ids[1], ids[2])
	}
	if err != nil {
		s.writeError(w, r, "delete_attachment", err)
		return
	}
	writeOK(w)
}
