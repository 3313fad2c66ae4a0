// Package vpnapi exposes the session lifecycle and the admin surface
// over HTTP. User endpoints are gated on bearer tokens: mutating the
// lifecycle takes a proof token, reading takes an access token.
package vpnapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"wgsd/cmd/internal/audit"
	"wgsd/cmd/internal/auth"
	"wgsd/cmd/internal/vpn/ippool"
	"wgsd/cmd/internal/vpn/session"
	"wgsd/cmd/security/token"
)

// A WireGuard public key is 32 bytes base64-encoded; anything shorter
// than this cannot be one.
const minPubkeyLen = 16

// Config holds the HTTP-facing session parameters.
type Config struct {
	MaxBodyBytes int64
}

// AuditLog is the read side of the audit trail the admin surface serves.
type AuditLog interface {
	ListRecent(ctx context.Context, sessionID *string, limit int) ([]audit.Entry, error)
}

// Handler wires the /v1/sessions and /v1/admin endpoints.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions *session.Service
	authn    *auth.Authenticator
	audit    AuditLog
}

// NewHandler constructs a session Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, authn *auth.Authenticator, rec AuditLog) (*Handler, error) {
	if log == nil {
		return nil, errors.New("vpnapi: nil logger")
	}
	if sessions == nil || authn == nil || rec == nil {
		return nil, errors.New("vpnapi: missing dependency")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	return &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		authn:    authn,
		audit:    rec,
	}, nil
}

// Register wires session and admin routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /v1/sessions", h.handleCreate)
	mux.HandleFunc("GET /v1/sessions/{id}", h.handleStatus)
	mux.HandleFunc("POST /v1/sessions/{id}/revoke", h.handleRevoke)
	mux.HandleFunc("POST /v1/sessions/{id}/renew", h.handleRenew)
	mux.HandleFunc("POST /v1/sessions/{id}/config", h.handleConfig)

	mux.HandleFunc("GET /v1/admin/sessions", h.handleAdminList)
	mux.HandleFunc("POST /v1/admin/sessions/{id}/revoke", h.handleAdminRevoke)
	mux.HandleFunc("GET /v1/admin/audit", h.handleAdminAudit)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	user, err := h.authn.UserFromRequest(r, token.ScopeProof, now)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	var req createSessionRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if len(req.ClientPubkey) < minPubkeyLen {
		writeError(w, http.StatusBadRequest, "invalid_request", "client_pubkey is required")
		return
	}
	step := 0
	if req.TTLStepSeconds != nil {
		if *req.TTLStepSeconds <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_ttl_step", "ttl_step_seconds must be positive")
			return
		}
		step = *req.TTLStepSeconds
	}

	sess, err := h.sessions.Create(r.Context(), now, session.CreateParams{
		UserID:         user.ID,
		ClientPubkey:   req.ClientPubkey,
		TTLStepSeconds: step,
	})
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(sess, now))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	user, err := h.authn.UserFromRequest(r, token.ScopeAccess, now)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	sess, err := h.sessions.Status(r.Context(), now, user.ID, r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(sess, now))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	user, err := h.authn.UserFromRequest(r, token.ScopeAccess, now)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	sess, err := h.sessions.Revoke(r.Context(), now, user.ID, r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	// The row's UpdatedAt is the instant the status flipped.
	writeJSON(w, http.StatusOK, revokeResponse{
		Status:    string(sess.Status),
		RevokedAt: sess.UpdatedAt,
	})
}

func (h *Handler) handleRenew(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	user, err := h.authn.UserFromRequest(r, token.ScopeProof, now)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	sess, err := h.sessions.Renew(r.Context(), now, user.ID, r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(sess, now))
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	user, err := h.authn.UserFromRequest(r, token.ScopeProof, now)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	cfg, err := h.sessions.Config(r.Context(), now, user.ID, r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toConfigResponse(cfg))
}

func (h *Handler) handleAdminList(w http.ResponseWriter, r *http.Request) {
	if err := h.authn.RequireAdmin(r); err != nil {
		writeError(w, http.StatusForbidden, "admin_forbidden", "Admin token invalid")
		return
	}

	sessions, err := h.sessions.AdminList(r.Context(), r.URL.Query().Get("status"))
	if errors.Is(err, session.ErrBadStatusFilter) {
		writeError(w, http.StatusBadRequest, "invalid_status", "unknown status filter")
		return
	}
	if err != nil {
		h.log.Error("admin.sessions.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	now := time.Now().UTC()
	out := adminSessionsResponse{Sessions: make([]adminSessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, toAdminSessionResponse(s, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAdminRevoke(w http.ResponseWriter, r *http.Request) {
	if err := h.authn.RequireAdmin(r); err != nil {
		writeError(w, http.StatusForbidden, "admin_forbidden", "Admin token invalid")
		return
	}

	now := time.Now().UTC()
	sess, err := h.sessions.AdminRevoke(r.Context(), now, r.PathValue("id"))
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session_not_found", "Session not found")
		return
	}
	if err != nil {
		h.log.Error("admin.sessions.revoke.fail", "session_id", r.PathValue("id"), "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toAdminSessionResponse(sess, now))
}

func (h *Handler) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	if err := h.authn.RequireAdmin(r); err != nil {
		writeError(w, http.StatusForbidden, "admin_forbidden", "Admin token invalid")
		return
	}

	var sessionID *string
	if v := r.URL.Query().Get("session_id"); v != "" {
		sessionID = &v
	}

	entries, err := h.audit.ListRecent(r.Context(), sessionID, 200)
	if err != nil {
		h.log.Error("admin.audit.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toAuditLogResponse(entries))
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "invalid_token", "Missing or invalid token")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "user_not_allowed", "User not allowed")
	default:
		h.log.Error("session.request.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func (h *Handler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "Session not found")
	case errors.Is(err, session.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not_owner", "Session belongs to another user")
	case errors.Is(err, session.ErrNotActive):
		writeError(w, http.StatusConflict, "not_active", "Session is not active")
	case errors.Is(err, session.ErrActiveSessionExists):
		writeError(w, http.StatusConflict, "active_session_exists", "An active session already exists")
	case errors.Is(err, session.ErrTTLMaxReached):
		writeError(w, http.StatusConflict, "ttl_max_reached", "TTL max reached")
	case errors.Is(err, session.ErrNoExtension):
		writeError(w, http.StatusConflict, "no_extension", "No extension")
	case errors.Is(err, session.ErrPubkeyInUse):
		writeError(w, http.StatusConflict, "pubkey_in_use", "Client public key already in use")
	case errors.Is(err, ippool.ErrPoolExhausted):
		writeError(w, http.StatusConflict, "pool_exhausted", "no free IPs available")
	case errors.Is(err, session.ErrInvalidTTLStep):
		writeError(w, http.StatusBadRequest, "invalid_ttl_step", "ttl_step_seconds is out of range")
	case errors.Is(err, session.ErrIPMissing):
		writeError(w, http.StatusInternalServerError, "ip_missing", "Session has no assigned address")
	default:
		h.log.Error("session.op.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
