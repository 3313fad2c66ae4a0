// Package authapi exposes the password+TOTP authentication flow over HTTP.
package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wgsd/cmd/identity"
	"wgsd/cmd/internal/audit"
	"wgsd/cmd/internal/auth"
	"wgsd/cmd/internal/auth/challenge"
	"wgsd/cmd/security/token"
)

// Config holds the HTTP-facing auth parameters.
type Config struct {
	MaxBodyBytes   int64
	ChallengeTTL   time.Duration
	AccessTokenTTL time.Duration
	ProofTokenTTL  time.Duration
}

// UserStore is the identity lookup surface the handlers need.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (identity.User, error)
	GetByID(ctx context.Context, id int64) (identity.User, error)
}

// Handler wires the /v1/auth endpoints.
type Handler struct {
	log        *slog.Logger
	cfg        Config
	users      UserStore
	challenges *challenge.PostgresStore
	tokens     *token.Manager
	authn      *auth.Authenticator
	audit      *audit.Recorder
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, users UserStore, challenges *challenge.PostgresStore, tokens *token.Manager, authn *auth.Authenticator, rec *audit.Recorder) (*Handler, error) {
	if log == nil {
		return nil, errors.New("authapi: nil logger")
	}
	if users == nil || challenges == nil || tokens == nil || authn == nil || rec == nil {
		return nil, errors.New("authapi: missing dependency")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	return &Handler{
		log:        log,
		cfg:        cfg,
		users:      users,
		challenges: challenges,
		tokens:     tokens,
		authn:      authn,
		audit:      rec,
	}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /v1/auth/start", h.handleStart)
	mux.HandleFunc("POST /v1/auth/verify-mfa", h.handleVerifyMFA)
	mux.HandleFunc("POST /v1/auth/step-up/start", h.handleStepUpStart)
	mux.HandleFunc("POST /v1/auth/step-up/verify", h.handleStepUpVerify)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req authStartRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	user, err := h.users.GetByUsername(ctx, username)
	if errors.Is(err, identity.ErrUserNotFound) || (err == nil && !identity.VerifyPassword(user.PasswordHash, req.Password)) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
		return
	}
	if err != nil {
		h.log.Error("auth.start.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	ch, err := h.challenges.Create(ctx, user.ID, challenge.TypeLogin, now, h.cfg.ChallengeTTL)
	if err != nil {
		h.log.Error("auth.start.challenge.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.audit.Record(ctx, audit.ActionAuthStart, &user.ID, nil, "MFA challenge issued")

	writeJSON(w, http.StatusOK, authStartResponse{
		ChallengeID:        ch.ID,
		MFARequired:        true,
		ChallengeExpiresIn: int(h.cfg.ChallengeTTL / time.Second),
	})
}

func (h *Handler) handleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req verifyMFARequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.ChallengeID == "" || len(req.TOTPCode) != 6 {
		writeError(w, http.StatusBadRequest, "invalid_request", "challenge_id and a 6-digit totp_code are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	ch, user, ok := h.checkChallenge(w, r, now, req.ChallengeID, challenge.TypeLogin, nil)
	if !ok {
		return
	}

	if !identity.VerifyTOTP(req.TOTPCode, user.MFASecret, now) {
		if _, err := h.challenges.IncrementTries(ctx, ch.ID); err != nil {
			h.log.Error("auth.verify.tries.fail", "challenge_id", ch.ID, "err", err)
		}
		writeError(w, http.StatusUnauthorized, "invalid_mfa", "Invalid MFA")
		return
	}

	consumed, err := h.challenges.Consume(ctx, ch.ID)
	if err != nil {
		h.log.Error("auth.verify.consume.fail", "challenge_id", ch.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if !consumed {
		writeError(w, http.StatusGone, "challenge_consumed", "Challenge consumed")
		return
	}

	access, _, err := h.tokens.IssueAccess(user.ID, now)
	if err != nil {
		h.log.Error("auth.verify.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	proof, _, err := h.tokens.IssueProof(user.ID, now)
	if err != nil {
		h.log.Error("auth.verify.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.audit.Record(ctx, audit.ActionMFAVerified, &user.ID, nil, "Access and proof token issued")

	writeJSON(w, http.StatusOK, verifyMFAResponse{
		AccessToken:     access,
		AccessExpiresIn: int(h.cfg.AccessTokenTTL / time.Second),
		ProofToken:      proof,
		ProofExpiresIn:  int(h.cfg.ProofTokenTTL / time.Second),
	})
}

func (h *Handler) handleStepUpStart(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	user, err := h.authn.UserFromRequest(r, token.ScopeAccess, now)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	ctx := r.Context()
	ch, err := h.challenges.Create(ctx, user.ID, challenge.TypeStepUp, now, h.cfg.ChallengeTTL)
	if err != nil {
		h.log.Error("auth.stepup.challenge.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.audit.Record(ctx, audit.ActionStepUpStart, &user.ID, nil, "Step-up MFA challenge issued")

	writeJSON(w, http.StatusOK, stepUpStartResponse{
		ChallengeID:        ch.ID,
		ChallengeExpiresIn: int(h.cfg.ChallengeTTL / time.Second),
	})
}

func (h *Handler) handleStepUpVerify(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	user, err := h.authn.UserFromRequest(r, token.ScopeAccess, now)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	var req verifyMFARequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.ChallengeID == "" || len(req.TOTPCode) != 6 {
		writeError(w, http.StatusBadRequest, "invalid_request", "challenge_id and a 6-digit totp_code are required")
		return
	}

	ctx := r.Context()

	ch, _, ok := h.checkChallenge(w, r, now, req.ChallengeID, challenge.TypeStepUp, &user)
	if !ok {
		return
	}

	if !identity.VerifyTOTP(req.TOTPCode, user.MFASecret, now) {
		if _, err := h.challenges.IncrementTries(ctx, ch.ID); err != nil {
			h.log.Error("auth.stepup.tries.fail", "challenge_id", ch.ID, "err", err)
		}
		writeError(w, http.StatusUnauthorized, "invalid_mfa", "Invalid MFA")
		return
	}

	consumed, err := h.challenges.Consume(ctx, ch.ID)
	if err != nil {
		h.log.Error("auth.stepup.consume.fail", "challenge_id", ch.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if !consumed {
		writeError(w, http.StatusGone, "challenge_consumed", "Challenge consumed")
		return
	}

	proof, _, err := h.tokens.IssueProof(user.ID, now)
	if err != nil {
		h.log.Error("auth.stepup.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.audit.Record(ctx, audit.ActionStepUpVerified, &user.ID, nil, "Proof token issued")

	writeJSON(w, http.StatusOK, stepUpVerifyResponse{
		ProofToken:     proof,
		ProofExpiresIn: int(h.cfg.ProofTokenTTL / time.Second),
	})
}

// checkChallenge runs the shared challenge gate: existence and type,
// consumed, expiry, user resolution, ownership (step-up), and the try
// budget. It writes the error response itself and reports ok=false when
// the caller must stop.
func (h *Handler) checkChallenge(w http.ResponseWriter, r *http.Request, now time.Time, id string, typ challenge.Type, owner *identity.User) (challenge.Challenge, identity.User, bool) {
	ctx := r.Context()

	ch, err := h.challenges.GetByID(ctx, id)
	if errors.Is(err, challenge.ErrChallengeNotFound) || (err == nil && ch.Type != typ) {
		writeError(w, http.StatusNotFound, "challenge_not_found", "Challenge not found")
		return challenge.Challenge{}, identity.User{}, false
	}
	if err != nil {
		h.log.Error("auth.challenge.get.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return challenge.Challenge{}, identity.User{}, false
	}

	if ch.Consumed {
		writeError(w, http.StatusGone, "challenge_consumed", "Challenge consumed")
		return challenge.Challenge{}, identity.User{}, false
	}
	if ch.Expired(now) {
		writeError(w, http.StatusGone, "challenge_expired", "Challenge expired")
		return challenge.Challenge{}, identity.User{}, false
	}

	var user identity.User
	if owner != nil {
		if owner.ID != ch.UserID {
			writeError(w, http.StatusForbidden, "challenge_not_authorized", "Challenge not authorized")
			return challenge.Challenge{}, identity.User{}, false
		}
		user = *owner
	} else {
		user, err = h.users.GetByID(ctx, ch.UserID)
		if errors.Is(err, identity.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user_not_found", "User not found")
			return challenge.Challenge{}, identity.User{}, false
		}
		if err != nil {
			h.log.Error("auth.challenge.user.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return challenge.Challenge{}, identity.User{}, false
		}
	}

	if ch.Tries >= challenge.MaxTries {
		writeError(w, http.StatusTooManyRequests, "too_many_tries", "Too many tries, challenge expired")
		return challenge.Challenge{}, identity.User{}, false
	}

	return ch, user, true
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "invalid_token", "Missing or invalid token")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "user_not_allowed", "User not allowed")
	default:
		h.log.Error("auth.request.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
