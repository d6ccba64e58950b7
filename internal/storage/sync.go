package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dennisdiepolder/monti/agentkpi/internal/normalize"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
)

// SyncResult reports what SyncAgents did
type SyncResult struct {
	Created  []Profile `json:"created"`
	Existing int       `json:"existing"`
}

// SyncAgents creates an agent login for every agent name that no agent
// account carries yet. New accounts get defaultPassword and must reset it.
func SyncAgents(ctx context.Context, store Store, agents []string, defaultPassword string) (SyncResult, error) {
	var result SyncResult

	profiles, err := store.ListUsers(ctx)
	if err != nil {
		return result, err
	}

	taken := make(map[string]bool, len(profiles))
	covered := make(map[string]bool)
	for _, p := range profiles {
		taken[p.Username] = true
		if p.Role == types.RoleAgent && p.DisplayName != "" {
			covered[p.DisplayName] = true
		}
	}

	pending := make(map[string]bool)
	for _, a := range agents {
		a = normalize.CleanAgent(a)
		if a == "" {
			continue
		}
		if covered[a] {
			continue
		}
		pending[a] = true
	}
	result.Existing = len(covered)

	names := make([]string, 0, len(pending))
	for a := range pending {
		names = append(names, a)
	}
	sort.Strings(names)

	for _, agent := range names {
		login := SuggestLogin(agent, taken)
		nu := NewUser{
			Username:  login,
			Password:  defaultPassword,
			Role:      types.RoleAgent,
			Agent:     agent,
			MustReset: true,
		}
		if err := store.CreateUser(ctx, nu); err != nil {
			if errors.Is(err, ErrUserExists) {
				taken[login] = true
				continue
			}
			return result, fmt.Errorf("failed to create login for %q: %w", agent, err)
		}
		taken[login] = true
		result.Created = append(result.Created, Profile{
			Username:          login,
			Role:              types.RoleAgent,
			DisplayName:       agent,
			MustResetPassword: true,
		})
	}
	return result, nil
}

// SuggestLogin derives a login from an agent name: lowercase, spaces
// become dots, hyphens are dropped. Taken logins get a counter suffix
// starting at 1.
func SuggestLogin(agent string, taken map[string]bool) string {
	base := strings.ToLower(normalize.CleanAgent(agent))
	base = strings.ReplaceAll(base, " ", ".")
	base = strings.ReplaceAll(base, "-", "")

	login := base
	for n := 1; taken[login]; n++ {
		login = base + strconv.Itoa(n)
	}
	return login
}
