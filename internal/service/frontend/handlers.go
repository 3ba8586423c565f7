package frontend

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/milalabs/licsync/internal/backup"
	"github.com/milalabs/licsync/internal/gitsync"
	"github.com/milalabs/licsync/internal/license"
	"github.com/milalabs/licsync/internal/logger"
	"github.com/milalabs/licsync/internal/logger/tag"
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type validateRequest struct {
	LicenseKey string `json:"license_key"`
	// Licensekey is the field name used by deployed clients.
	Licensekey string `json:"Licensekey"`
	Activate   bool   `json:"activate"`
}

type validateResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	License *license.Record `json:"license,omitempty"`
}

type licensesResponse struct {
	Count    int                       `json:"count"`
	Licenses map[string]license.Record `json:"licenses"`
}

func (srv *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (srv *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "Invalid request body"})
		return
	}
	key := strings.TrimSpace(req.LicenseKey)
	if key == "" {
		key = strings.TrimSpace(req.Licensekey)
	}
	if key == "" {
		writeJSON(w, http.StatusBadRequest, response{Message: "Missing licenseKey"})
		return
	}

	ctx := r.Context()
	var (
		rec *license.Record
		err error
	)
	if req.Activate {
		rec, err = srv.licenses.Activate(ctx, "", key)
	} else {
		rec, err = srv.licenses.LookupLicense(ctx, "", key)
	}
	switch {
	case errors.Is(err, license.ErrNotFound):
		writeJSON(w, http.StatusOK, validateResponse{Message: "Invalid license"})
	case err != nil:
		logger.Error(ctx, "License lookup failed", tag.LicenseKey(key), tag.Error(err))
		writeJSON(w, http.StatusInternalServerError, response{Message: "Internal error"})
	default:
		writeJSON(w, http.StatusOK, validateResponse{
			Success: true,
			Message: "License validated successfully",
			License: rec,
		})
	}
}

func (srv *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		given := r.Header.Get("X-Admin-Key")
		if given == "" {
			given = r.URL.Query().Get("key")
		}
		// An unset admin key closes the admin routes.
		if srv.cfg.AdminKey == "" || subtle.ConstantTimeCompare([]byte(given), []byte(srv.cfg.AdminKey)) != 1 {
			writeJSON(w, http.StatusForbidden, response{Message: "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (srv *Server) handleListLicenses(w http.ResponseWriter, r *http.Request) {
	all, err := srv.licenses.ListAll(r.Context(), r.URL.Query().Get("collection"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := licensesResponse{Licenses: make(map[string]license.Record, len(all))}
	for _, rec := range all {
		out.Licenses[rec.LicenseKey] = rec
	}
	out.Count = len(out.Licenses)
	writeJSON(w, http.StatusOK, out)
}

func (srv *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := srv.licenses.ClearAll(r.Context(), r.URL.Query().Get("collection")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "All licenses cleared"})
}

func (srv *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if srv.syncer == nil {
		writeJSON(w, http.StatusServiceUnavailable, response{Message: "Git sync is not enabled"})
		return
	}
	ch := srv.syncer.Dispatch(r.Context(), gitsync.TriggerManual)
	if r.URL.Query().Get("wait") == "false" {
		writeJSON(w, http.StatusAccepted, response{Success: true, Message: "Sync dispatched"})
		return
	}
	select {
	case result := <-ch:
		status := http.StatusOK
		if !result.Success && !result.Skipped {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, result)
	case <-r.Context().Done():
	}
}

func (srv *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if srv.syncer == nil {
		writeJSON(w, http.StatusServiceUnavailable, response{Message: "Git sync is not enabled"})
		return
	}
	state, err := srv.syncer.GetStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (srv *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if srv.backuper == nil {
		writeJSON(w, http.StatusServiceUnavailable, response{Message: "Backup is not enabled"})
		return
	}
	op := backup.OpUpload
	if r.URL.Query().Get("op") == string(backup.OpDownload) {
		op = backup.OpDownload
	}
	select {
	case result := <-srv.backuper.Dispatch(r.Context(), op):
		status := http.StatusOK
		if !result.Success {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, result)
	case <-r.Context().Done():
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, license.ErrInvalidCollection) {
		writeJSON(w, http.StatusBadRequest, response{Message: err.Error()})
		return
	}
	logger.Error(r.Context(), "Request failed", tag.Error(err))
	writeJSON(w, http.StatusInternalServerError, response{Message: "Internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
