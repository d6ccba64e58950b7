package storage

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dennisdiepolder/monti/agentkpi/internal/normalize"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrSelfDelete      = errors.New("cannot delete own account")
	ErrInvalidUsername = errors.New("username is required")
	ErrEmptyPassword   = errors.New("password is required")
	ErrEmptyAgent      = errors.New("agent name is required for agent accounts")
)

// InitialAdmin is seeded into an empty store
const (
	InitialAdmin      = "admin"
	InitialAdminAgent = "Admin Master"
)

// Profile is what the dashboard knows about a signed-in user
type Profile struct {
	Username          string     `json:"username"`
	Role              types.Role `json:"role"`
	DisplayName       string     `json:"display_name"` // agent name, joined against table rows
	MustResetPassword bool       `json:"must_reset_password"`
}

// NewUser describes an account to create. An empty password means the
// default password with a forced reset.
type NewUser struct {
	Username  string
	Password  string
	Role      types.Role
	Agent     string
	MustReset bool
}

// Store defines the credential store interface
type Store interface {
	Verify(ctx context.Context, username, password string) (bool, error)
	GetProfile(ctx context.Context, username string) (Profile, error)
	SetPassword(ctx context.Context, username, password string, mustReset bool) error
	CreateUser(ctx context.Context, u NewUser) error
	DeleteUser(ctx context.Context, username, actingUser string) error
	ListUsers(ctx context.Context) ([]Profile, error)
}

// Record is one stored account. Password holds a bcrypt hash; records
// written by older tooling may still hold plaintext, which is re-hashed on
// the next successful login.
type Record struct {
	Username  string `json:"-" dynamodbav:"Username"`
	Password  string `json:"password" dynamodbav:"Password"`
	Role      string `json:"role" dynamodbav:"Role"`
	Agent     string `json:"agente" dynamodbav:"Agent"`
	MustReset bool   `json:"primeiro_acesso" dynamodbav:"MustReset"`
}

// Profile converts a record into its public view
func (r Record) Profile() Profile {
	return Profile{
		Username:          r.Username,
		Role:              types.ParseRole(r.Role),
		DisplayName:       normalize.CleanAgent(r.Agent),
		MustResetPassword: r.MustReset,
	}
}

// Backend persists records. Get and Delete return ErrUserNotFound, Create
// returns ErrUserExists.
type Backend interface {
	Get(ctx context.Context, username string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Create(ctx context.Context, rec Record) error
	Delete(ctx context.Context, username string) error
	List(ctx context.Context) ([]Record, error)
}

// Users implements Store over any Backend
type Users struct {
	backend         Backend
	defaultPassword string
	cost            int
	logger          zerolog.Logger
}

// NewUsers creates a credential store over backend
func NewUsers(backend Backend, defaultPassword string, logger zerolog.Logger) *Users {
	if defaultPassword == "" {
		defaultPassword = DefaultPassword
	}
	return &Users{
		backend:         backend,
		defaultPassword: defaultPassword,
		cost:            bcrypt.DefaultCost,
		logger:          logger.With().Str("component", "credentials").Logger(),
	}
}

// DefaultPassword returns the password given to new and reset accounts
func (u *Users) DefaultPassword() string {
	return u.defaultPassword
}

// EnsureAdmin seeds the initial admin account when the store is empty
func (u *Users) EnsureAdmin(ctx context.Context) error {
	records, err := u.backend.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	if len(records) > 0 {
		return nil
	}

	err = u.CreateUser(ctx, NewUser{Username: InitialAdmin, Role: types.RoleAdmin, Agent: InitialAdminAgent})
	if err != nil && !errors.Is(err, ErrUserExists) {
		return fmt.Errorf("failed to seed admin: %w", err)
	}
	u.logger.Warn().Str("username", InitialAdmin).Msg("seeded initial admin with default password")
	return nil
}

// Verify checks a password. Unknown users verify as false without error.
func (u *Users) Verify(ctx context.Context, username, password string) (bool, error) {
	rec, err := u.backend.Get(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user: %w", err)
	}

	if isHash(rec.Password) {
		return bcrypt.CompareHashAndPassword([]byte(rec.Password), []byte(password)) == nil, nil
	}

	// Legacy plaintext record
	if subtle.ConstantTimeCompare([]byte(rec.Password), []byte(password)) != 1 {
		return false, nil
	}
	if hash, err := u.hash(password); err == nil {
		rec.Password = hash
		if err := u.backend.Put(ctx, rec); err != nil {
			u.logger.Error().Err(err).Str("username", rec.Username).Msg("failed to upgrade legacy password")
		} else {
			u.logger.Info().Str("username", rec.Username).Msg("upgraded legacy password to bcrypt")
		}
	}
	return true, nil
}

// GetProfile returns the public view of an account
func (u *Users) GetProfile(ctx context.Context, username string) (Profile, error) {
	rec, err := u.backend.Get(ctx, strings.TrimSpace(username))
	if err != nil {
		return Profile{}, err
	}
	return rec.Profile(), nil
}

// SetPassword replaces the password and sets the forced-reset flag
func (u *Users) SetPassword(ctx context.Context, username, password string, mustReset bool) error {
	if password == "" {
		return ErrEmptyPassword
	}
	rec, err := u.backend.Get(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}

	hash, err := u.hash(password)
	if err != nil {
		return err
	}
	rec.Password = hash
	rec.MustReset = mustReset

	if err := u.backend.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to save password: %w", err)
	}
	u.logger.Info().Str("username", rec.Username).Bool("must_reset", mustReset).Msg("password changed")
	return nil
}

// CreateUser adds an account
func (u *Users) CreateUser(ctx context.Context, nu NewUser) error {
	username := strings.TrimSpace(nu.Username)
	if username == "" {
		return ErrInvalidUsername
	}

	role := nu.Role
	if role == "" {
		role = types.RoleAgent
	}
	agent := normalize.CleanAgent(nu.Agent)
	if role != types.RoleAdmin && agent == "" {
		return ErrEmptyAgent
	}

	password, mustReset := nu.Password, nu.MustReset
	if password == "" {
		password, mustReset = u.defaultPassword, true
	}
	hash, err := u.hash(password)
	if err != nil {
		return err
	}

	rec := Record{
		Username:  username,
		Password:  hash,
		Role:      string(role),
		Agent:     agent,
		MustReset: mustReset,
	}
	if err := u.backend.Create(ctx, rec); err != nil {
		return err
	}
	u.logger.Info().Str("username", username).Str("role", rec.Role).Msg("user created")
	return nil
}

// DeleteUser removes an account. Deleting the acting account is refused.
func (u *Users) DeleteUser(ctx context.Context, username, actingUser string) error {
	username = strings.TrimSpace(username)
	if username == strings.TrimSpace(actingUser) {
		return ErrSelfDelete
	}
	if err := u.backend.Delete(ctx, username); err != nil {
		return err
	}
	u.logger.Info().Str("username", username).Str("by", actingUser).Msg("user deleted")
	return nil
}

// ListUsers returns every account sorted by username
func (u *Users) ListUsers(ctx context.Context) ([]Profile, error) {
	records, err := u.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	profiles := make([]Profile, 0, len(records))
	for _, r := range records {
		profiles = append(profiles, r.Profile())
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Username < profiles[j].Username })
	return profiles, nil
}

func (u *Users) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), u.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

func isHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
