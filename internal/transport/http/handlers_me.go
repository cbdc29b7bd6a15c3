package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"peakform/internal/platform/middleware"
	"peakform/internal/transport/http/json"
	"peakform/internal/transport/http/shared"
)

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())
	json.WriteJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"subject_id":     authCtx.SubjectID,
		"email":          authCtx.Email,
		"email_verified": authCtx.EmailVerified,
		"premium":        authCtx.Claims.Premium,
	})
}

func (h *Handler) handleRemainingQuota(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())
	remaining, err := h.limiter.Remaining(r.Context(), chi.URLParam(r, "limitName"), authCtx.SubjectID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"remaining": remaining.Remaining,
		"reset_at":  remaining.ResetAt,
	})
}

func (h *Handler) handleWorkoutUpload(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())
	ctx := r.Context()

	if err := h.resolver.RequireConsent(ctx, authCtx.SubjectID); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.resolver.RequireWritePermission(ctx, authCtx.SubjectID); err != nil {
		shared.WriteError(w, err)
		return
	}

	// Ingestion itself lives in the workout service; this core only gates it.
	json.WriteJSON(w, http.StatusAccepted, map[string]any{"success": true, "status": "accepted"})
}

func (h *Handler) handleDataExport(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())

	if err := h.resolver.RequireConsent(r.Context(), authCtx.SubjectID); err != nil {
		shared.WriteError(w, err)
		return
	}

	json.WriteJSON(w, http.StatusAccepted, map[string]any{"success": true, "status": "queued"})
}
