package httptransport

import (
	"context"
	encjson "encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"peakform/internal/adminauthz"
	"peakform/internal/audit"
	"peakform/internal/platform/middleware"
	"peakform/internal/transport/http/json"
	"peakform/internal/transport/http/shared"
	dErrors "peakform/pkg/domain-errors"
)

func (h *Handler) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	level := adminauthz.Level(r.URL.Query().Get("level"))
	admins, err := h.admin.ListAdmins(r.Context(), level)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "admins": admins})
}

func (h *Handler) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	var entries []audit.Entry
	var err error
	if adminID := r.URL.Query().Get("admin_id"); adminID != "" {
		entries, err = h.audit.ListByAdmin(r.Context(), adminID, limit)
	} else {
		entries, err = h.audit.ListRecent(r.Context(), limit)
	}
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not read audit log"))
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "entries": entries})
}

type suspendRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleSuspendUser(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())
	targetID := chi.URLParam(r, "userID")

	var body suspendRequest
	if err := encjson.NewDecoder(r.Body).Decode(&body); err != nil || body.Reason == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "a reason is required"))
		return
	}

	err := h.admin.ExecuteAdminAction(r.Context(), adminauthz.Request{
		AdminID:      authCtx.SubjectID,
		TargetUserID: targetID,
		Action:       adminauthz.ActionSuspendUser,
		Reason:       body.Reason,
	}, func(ctx context.Context) error {
		return h.resolver.SetForceLogout(ctx, targetID)
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type setLevelRequest struct {
	Level  string `json:"level"`
	Reason string `json:"reason"`
}

func (h *Handler) handleSetAdminLevel(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())
	targetID := chi.URLParam(r, "userID")

	var body setLevelRequest
	if err := encjson.NewDecoder(r.Body).Decode(&body); err != nil || body.Level == "" || body.Reason == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "level and reason are required"))
		return
	}

	err := h.admin.ExecuteAdminAction(r.Context(), adminauthz.Request{
		AdminID:      authCtx.SubjectID,
		TargetUserID: targetID,
		Action:       adminauthz.ActionModifyClaims,
		Reason:       body.Reason,
		Metadata:     map[string]any{"level": body.Level},
	}, func(ctx context.Context) error {
		return h.admin.SetAdminLevel(ctx, authCtx.SubjectID, targetID, adminauthz.Level(body.Level))
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleResetRateLimit(w http.ResponseWriter, r *http.Request) {
	limitName := chi.URLParam(r, "limitName")
	key := chi.URLParam(r, "key")

	if err := h.limiter.Reset(r.Context(), limitName, key); err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
