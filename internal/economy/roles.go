package economy

import (
	"fmt"
	"sync"
)

// Role is a capability required to invoke a privileged engine operation.
type Role string

const (
	RoleMinter      Role = "minter"
	RoleOracle      Role = "oracle"
	RoleDistributor Role = "distributor"
	RoleAdmin       Role = "admin"
)

// Authorizer answers whether a caller holds a role. The engine treats it as
// an external identity/role registry; a denial aborts the operation with no
// state change.
type Authorizer interface {
	HasRole(caller Address, role Role) bool
}

// StaticAuthorizer is an in-memory Authorizer backed by an explicit grant
// table. Safe for concurrent use.
type StaticAuthorizer struct {
	mu     sync.RWMutex
	grants map[Address]map[Role]bool
}

func NewStaticAuthorizer() *StaticAuthorizer {
	return &StaticAuthorizer{grants: make(map[Address]map[Role]bool)}
}

// Grant gives caller the role.
func (a *StaticAuthorizer) Grant(caller Address, role Role) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.grants[caller] == nil {
		a.grants[caller] = make(map[Role]bool)
	}
	a.grants[caller][role] = true
}

// Revoke removes the role from caller.
func (a *StaticAuthorizer) Revoke(caller Address, role Role) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.grants[caller], role)
}

func (a *StaticAuthorizer) HasRole(caller Address, role Role) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.grants[caller][role]
}

func requireRole(auth Authorizer, caller Address, role Role) error {
	if auth == nil || !auth.HasRole(caller, role) {
		return fmt.Errorf("%w: %s requires role %q", ErrUnauthorized, caller, role)
	}
	return nil
}
