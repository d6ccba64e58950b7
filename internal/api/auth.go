package api

import (
	"net/http"
	"time"

	"github.com/dennisdiepolder/monti/agentkpi/internal/auth"
	"github.com/dennisdiepolder/monti/agentkpi/internal/metrics"
	"github.com/dennisdiepolder/monti/agentkpi/internal/storage"
	"github.com/rs/zerolog"
)

// AuthHandler signs users in and lets them replace their password
type AuthHandler struct {
	store   storage.Store
	issuer  *auth.Issuer
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewAuthHandler(store storage.Store, issuer *auth.Issuer, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		store:   store,
		issuer:  issuer,
		metrics: metrics.Get(),
		logger:  logger.With().Str("component", "auth_handler").Logger(),
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type passwordRequest struct {
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// SessionResponse carries a signed token and the profile it was issued for
type SessionResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Profile   storage.Profile `json:"profile"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := h.store.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Error().Err(err).Str("username", req.Username).Msg("failed to verify credentials")
		writeError(w, http.StatusInternalServerError, "failed to verify credentials")
		return
	}
	h.metrics.RecordLogin(ok)
	if !ok {
		h.logger.Info().Str("username", req.Username).Msg("login rejected")
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	h.issue(w, r, req.Username)
}

// ChangePassword handles POST /api/auth/password. It clears the forced
// reset and returns a fresh token reflecting that.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req passwordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.SetPassword(r.Context(), claims.Username, req.NewPassword, false); err != nil {
		writeStoreError(w, h.logger, err, "failed to change password")
		return
	}

	h.issue(w, r, claims.Username)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, storage.Profile{
		Username:          claims.Username,
		Role:              claims.Role,
		DisplayName:       claims.Agent,
		MustResetPassword: claims.MustReset,
	})
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, username string) {
	profile, err := h.store.GetProfile(r.Context(), username)
	if err != nil {
		writeStoreError(w, h.logger, err, "failed to load profile")
		return
	}

	token, expires, err := h.issuer.Issue(auth.ClaimsFor(profile))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to issue token")
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.logger.Info().Str("username", profile.Username).Str("role", string(profile.Role)).Msg("session issued")
	writeJSON(w, http.StatusOK, SessionResponse{Token: token, ExpiresAt: expires, Profile: profile})
}
