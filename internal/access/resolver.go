package access

import (
	"sync"

	"github.com/learnio/learnio/internal/models"
)

type memoKey struct {
	version int64
	email   string
}

// Resolver maps a session email to the role on the matching user record.
// Results are memoised per (collection version, email); a newer version evicts the memo.
type Resolver struct {
	mu      sync.Mutex
	version int64
	memo    map[memoKey]models.UserRole
	scans   int
}

func NewResolver() *Resolver {
	return &Resolver{memo: make(map[memoKey]models.UserRole)}
}

// Resolve returns the role of the user whose email matches case-insensitively,
// or RoleUnknown when there is no match. It never fails.
func (r *Resolver) Resolve(version int64, users []*models.User, email string) models.UserRole {
	email = models.NormalizeEmail(email)
	if email == "" {
		return models.RoleUnknown
	}
	key := memoKey{version: version, email: email}

	r.mu.Lock()
	if version > r.version {
		r.version = version
		r.memo = make(map[memoKey]models.UserRole)
	}
	if role, ok := r.memo[key]; ok {
		r.mu.Unlock()
		return role
	}
	stale := version < r.version
	r.scans++
	r.mu.Unlock()

	role := scan(users, email)

	// an older collection may still be rendering; answer it without polluting the memo
	if !stale {
		r.mu.Lock()
		if version == r.version {
			r.memo[key] = role
		}
		r.mu.Unlock()
	}
	return role
}

func scan(users []*models.User, email string) models.UserRole {
	for _, u := range users {
		if u != nil && models.NormalizeEmail(u.Email) == email {
			return models.ParseRole(string(u.Role))
		}
	}
	return models.RoleUnknown
}

// Forget drops memoised roles for an email, used on sign-out
func (r *Resolver) Forget(email string) {
	email = models.NormalizeEmail(email)

	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.memo {
		if key.email == email {
			delete(r.memo, key)
		}
	}
}
