package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

func newTestUsers(backend Backend) *Users {
	u := NewUsers(backend, "", zerolog.Nop())
	u.cost = bcrypt.MinCost
	return u
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	u := newTestUsers(NewMemoryBackend())

	if err := u.EnsureAdmin(ctx); err != nil {
		t.Fatalf("EnsureAdmin() error = %v", err)
	}

	p, err := u.GetProfile(ctx, InitialAdmin)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	want := Profile{Username: "admin", Role: types.RoleAdmin, DisplayName: "Admin Master", MustResetPassword: true}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("admin profile mismatch (-want +got):\n%s", diff)
	}

	ok, err := u.Verify(ctx, InitialAdmin, DefaultPassword)
	if err != nil || !ok {
		t.Errorf("Verify(admin, default) = %v, %v; want true, nil", ok, err)
	}

	// A second call on a populated store is a no-op
	if err := u.SetPassword(ctx, InitialAdmin, "changed", false); err != nil {
		t.Fatal(err)
	}
	if err := u.EnsureAdmin(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, _ := u.Verify(ctx, InitialAdmin, "changed"); !ok {
		t.Error("EnsureAdmin reset an existing admin")
	}
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	u := newTestUsers(NewMemoryBackend())
	if err := u.CreateUser(ctx, NewUser{Username: "maria", Password: "secret", Agent: "Maria Souza"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{"correct password", "maria", "secret", true},
		{"padded username", " maria ", "secret", true},
		{"wrong password", "maria", "nope", false},
		{"unknown user", "joao", "secret", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := u.Verify(ctx, tt.username, tt.password)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyUpgradesLegacyPlaintext(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	backend.Put(ctx, Record{Username: "legacy", Password: "12345", Role: "user", Agent: "Ana Lima", MustReset: true})
	u := newTestUsers(backend)

	if ok, _ := u.Verify(ctx, "legacy", "wrong"); ok {
		t.Fatal("wrong plaintext password accepted")
	}
	ok, err := u.Verify(ctx, "legacy", "12345")
	if err != nil || !ok {
		t.Fatalf("Verify() = %v, %v; want true, nil", ok, err)
	}

	rec, _ := backend.Get(ctx, "legacy")
	if !isHash(rec.Password) {
		t.Errorf("password not re-hashed: %q", rec.Password)
	}
	if ok, _ := u.Verify(ctx, "legacy", "12345"); !ok {
		t.Error("re-hashed password no longer verifies")
	}

	p, _ := u.GetProfile(ctx, "legacy")
	if p.Role != types.RoleAgent {
		t.Errorf("legacy role user parsed as %q, want agent", p.Role)
	}
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	u := newTestUsers(NewMemoryBackend())

	if err := u.CreateUser(ctx, NewUser{Username: "  "}); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("blank username error = %v, want ErrInvalidUsername", err)
	}

	if err := u.CreateUser(ctx, NewUser{Username: "ana", Agent: "  Ana   Lima "}); err != nil {
		t.Fatal(err)
	}
	if err := u.CreateUser(ctx, NewUser{Username: "ana", Agent: "Ana Lima"}); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate error = %v, want ErrUserExists", err)
	}

	for _, agent := range []string{"", "   "} {
		if err := u.CreateUser(ctx, NewUser{Username: "ghost", Agent: agent}); !errors.Is(err, ErrEmptyAgent) {
			t.Errorf("agent %q error = %v, want ErrEmptyAgent", agent, err)
		}
	}
	if err := u.CreateUser(ctx, NewUser{Username: "boss", Role: types.RoleAdmin}); err != nil {
		t.Errorf("admin without agent name: %v", err)
	}

	p, err := u.GetProfile(ctx, "ana")
	if err != nil {
		t.Fatal(err)
	}
	want := Profile{Username: "ana", Role: types.RoleAgent, DisplayName: "Ana Lima", MustResetPassword: true}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
	if ok, _ := u.Verify(ctx, "ana", DefaultPassword); !ok {
		t.Error("empty password did not fall back to the default")
	}
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	u := newTestUsers(NewMemoryBackend())
	u.EnsureAdmin(ctx)
	u.CreateUser(ctx, NewUser{Username: "ana", Agent: "Ana Lima"})

	if err := u.DeleteUser(ctx, "admin", "admin"); !errors.Is(err, ErrSelfDelete) {
		t.Errorf("self delete error = %v, want ErrSelfDelete", err)
	}
	if err := u.DeleteUser(ctx, "ghost", "admin"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("missing user error = %v, want ErrUserNotFound", err)
	}
	if err := u.DeleteUser(ctx, "ana", "admin"); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}

	users, _ := u.ListUsers(ctx)
	if len(users) != 1 || users[0].Username != "admin" {
		t.Errorf("ListUsers() = %+v, want only admin", users)
	}
}

func TestSetPassword(t *testing.T) {
	ctx := context.Background()
	u := newTestUsers(NewMemoryBackend())
	u.CreateUser(ctx, NewUser{Username: "ana", Agent: "Ana Lima"})

	if err := u.SetPassword(ctx, "ana", "", false); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("empty password error = %v, want ErrEmptyPassword", err)
	}
	if err := u.SetPassword(ctx, "ghost", "x", false); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("missing user error = %v, want ErrUserNotFound", err)
	}
	if err := u.SetPassword(ctx, "ana", "n3w", false); err != nil {
		t.Fatal(err)
	}

	p, _ := u.GetProfile(ctx, "ana")
	if p.MustResetPassword {
		t.Error("must reset still set after password change")
	}
	if ok, _ := u.Verify(ctx, "ana", DefaultPassword); ok {
		t.Error("old password still verifies")
	}
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")

	legacy := `{
    "admin": {"password": "12345", "role": "admin", "primeiro_acesso": true, "agente": "Admin Master"},
    "joao.silva": {"password": "12345", "role": "user", "primeiro_acesso": false, "agente": "Joao Silva"}
}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	u := newTestUsers(NewFileBackend(path))
	users, err := u.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	want := []Profile{
		{Username: "admin", Role: types.RoleAdmin, DisplayName: "Admin Master", MustResetPassword: true},
		{Username: "joao.silva", Role: types.RoleAgent, DisplayName: "Joao Silva"},
	}
	if diff := cmp.Diff(want, users); diff != "" {
		t.Errorf("ListUsers() mismatch (-want +got):\n%s", diff)
	}

	if ok, _ := u.Verify(ctx, "joao.silva", "12345"); !ok {
		t.Fatal("legacy file password rejected")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Only the admin still holds a plaintext password
	if n := strings.Count(string(data), `"password": "12345"`); n != 1 {
		t.Errorf("plaintext passwords in users file = %d, want 1:\n%s", n, data)
	}
	if !strings.Contains(string(data), `"agente": "Joao Silva"`) {
		t.Errorf("users file lost its field names:\n%s", data)
	}

	// Reopening sees the same accounts
	reopened := newTestUsers(NewFileBackend(path))
	if ok, _ := reopened.Verify(ctx, "joao.silva", "12345"); !ok {
		t.Error("upgraded password lost after reopen")
	}
}

func TestFileBackendMissingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "users.json")
	u := newTestUsers(NewFileBackend(path))

	users, err := u.ListUsers(ctx)
	if err != nil || len(users) != 0 {
		t.Fatalf("ListUsers() = %v, %v; want empty", users, err)
	}
	if err := u.EnsureAdmin(ctx); err != nil {
		t.Fatalf("EnsureAdmin() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("users file not created: %v", err)
	}
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := NewCachedStore(newTestUsers(backend), time.Minute)
	store.CreateUser(ctx, NewUser{Username: "ana", Agent: "Ana Lima"})

	p, err := store.GetProfile(ctx, "ana")
	if err != nil || !p.MustResetPassword {
		t.Fatalf("GetProfile() = %+v, %v", p, err)
	}

	// Writes behind the cache's back stay invisible until the entry expires
	rec, _ := backend.Get(ctx, "ana")
	rec.Agent = "Someone Else"
	backend.Put(ctx, rec)
	if p, _ := store.GetProfile(ctx, "ana"); p.DisplayName != "Ana Lima" {
		t.Errorf("DisplayName = %q, want cached Ana Lima", p.DisplayName)
	}

	if p, _ := store.GetProfile(ctx, " ana "); p.DisplayName != "Ana Lima" {
		t.Errorf("padded lookup DisplayName = %q, want the shared cached entry", p.DisplayName)
	}

	// Writes through the store drop the entry, whatever the padding
	if err := store.SetPassword(ctx, "ana ", "n3w", false); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"ana", " ana"} {
		p, _ = store.GetProfile(ctx, name)
		if p.MustResetPassword || p.DisplayName != "Someone Else" {
			t.Errorf("profile %q after SetPassword = %+v, want fresh record", name, p)
		}
	}

	if err := store.DeleteUser(ctx, "ana", "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetProfile(ctx, "ana"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetProfile() after delete error = %v, want ErrUserNotFound", err)
	}
}

func TestNewStoreMemory(t *testing.T) {
	cfg := Config{Mode: ModeMemory, ProfileCacheTTL: time.Second}
	store, err := NewStore(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	p, err := store.GetProfile(context.Background(), InitialAdmin)
	if err != nil || p.Role != types.RoleAdmin {
		t.Errorf("GetProfile(admin) = %+v, %v", p, err)
	}
}
