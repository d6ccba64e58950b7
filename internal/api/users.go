package api

import (
	"errors"
	"net/http"

	"github.com/dennisdiepolder/monti/agentkpi/internal/auth"
	"github.com/dennisdiepolder/monti/agentkpi/internal/dataset"
	"github.com/dennisdiepolder/monti/agentkpi/internal/storage"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// UserHandler manages dashboard accounts. Every route is admin-only.
type UserHandler struct {
	store           storage.Store
	data            *dataset.Service
	defaultPassword string
	logger          zerolog.Logger
}

func NewUserHandler(store storage.Store, data *dataset.Service, defaultPassword string, logger zerolog.Logger) *UserHandler {
	if defaultPassword == "" {
		defaultPassword = storage.DefaultPassword
	}
	return &UserHandler{
		store:           store,
		data:            data,
		defaultPassword: defaultPassword,
		logger:          logger.With().Str("component", "user_handler").Logger(),
	}
}

type createUserRequest struct {
	Username string `json:"username" validate:"required"`
	Agent    string `json:"agent" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=admin agent user"`
	Password string `json:"password"`
}

type resetRequest struct {
	Password string `json:"password"`
}

type syncRequest struct {
	Month string `json:"month"`
}

// List handles GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeStoreError(w, h.logger, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// Create handles POST /api/users. New accounts start on the default
// password unless one is given, and must replace it at first login.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	nu := storage.NewUser{
		Username:  req.Username,
		Password:  req.Password,
		Role:      types.ParseRole(req.Role),
		Agent:     req.Agent,
		MustReset: true,
	}
	if err := h.store.CreateUser(r.Context(), nu); err != nil {
		writeStoreError(w, h.logger, err, "failed to create user")
		return
	}

	profile, err := h.store.GetProfile(r.Context(), req.Username)
	if err != nil {
		writeStoreError(w, h.logger, err, "failed to load user")
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

// Delete handles DELETE /api/users/{username}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())
	username := chi.URLParam(r, "username")

	if err := h.store.DeleteUser(r.Context(), username, claims.Username); err != nil {
		writeStoreError(w, h.logger, err, "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset handles POST /api/users/{username}/reset. The account gets the
// given password, or the default one, and must change it at next login.
func (h *UserHandler) Reset(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())
	username := chi.URLParam(r, "username")
	if username == claims.Username {
		writeError(w, http.StatusBadRequest, "use /api/auth/password to change your own password")
		return
	}

	var req resetRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	password := req.Password
	if password == "" {
		password = h.defaultPassword
	}

	if err := h.store.SetPassword(r.Context(), username, password, true); err != nil {
		writeStoreError(w, h.logger, err, "failed to reset password")
		return
	}
	h.logger.Info().Str("username", username).Str("by", claims.Username).Msg("password reset")
	w.WriteHeader(http.StatusNoContent)
}

// Sync handles POST /api/users/sync: every agent found in the monthly
// snapshot (or in all months when none is named) gets a login.
func (h *UserHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var agents []string
	if req.Month != "" {
		agents = h.data.Monthly(req.Month).Agents()
	} else {
		agents = h.data.History().Agents()
	}

	res, err := storage.SyncAgents(r.Context(), h.store, agents, h.defaultPassword)
	if err != nil {
		writeStoreError(w, h.logger, err, "failed to sync agents")
		return
	}
	if res.Created == nil {
		res.Created = []storage.Profile{}
	}
	h.logger.Info().Int("created", len(res.Created)).Int("existing", res.Existing).Msg("agent logins synced")
	writeJSON(w, http.StatusOK, res)
}

// writeStoreError maps credential store errors onto HTTP statuses
func writeStoreError(w http.ResponseWriter, logger zerolog.Logger, err error, msg string) {
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrUserExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrSelfDelete),
		errors.Is(err, storage.ErrInvalidUsername),
		errors.Is(err, storage.ErrEmptyPassword),
		errors.Is(err, storage.ErrEmptyAgent):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error().Err(err).Msg(msg)
		writeError(w, http.StatusInternalServerError, msg)
	}
}
