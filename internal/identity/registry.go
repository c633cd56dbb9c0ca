package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRegistered is returned when an identity already owns an
	// entity of the requested role.
	ErrAlreadyRegistered = errors.New("identity already registered for role")

	// ErrNotOwner is returned when an identity owns no entity of the
	// requested role.
	ErrNotOwner = errors.New("identity owns no entity of role")
)

// Role scopes registrations: one identity may own at most one entity of
// each role.
type Role string

const (
	RolePowerPlant  Role = "powerplant"
	RoleSubstation  Role = "substation"
	RoleDistributor Role = "distributor"
	RoleConsumer    Role = "consumer"
)

// Registry binds caller identities to entity ids, one per role. Entity
// id 0 is the "absent" sentinel and is never stored.
//
// Registry is not safe for concurrent use; callers serialize access.
type Registry struct {
	owners map[Role]map[string]uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		owners: make(map[Role]map[string]uint64),
	}
}

// Register binds identity to id under role. It fails without mutating
// state if the identity already owns an entity of that role.
func (r *Registry) Register(role Role, identity string, id uint64) error {
	ids, ok := r.owners[role]
	if !ok {
		ids = make(map[string]uint64)
		r.owners[role] = ids
	}
	if existing, ok := ids[identity]; ok {
		return fmt.Errorf("%w: %s already owns %s %d", ErrAlreadyRegistered, identity, role, existing)
	}
	ids[identity] = id
	return nil
}

// Resolve returns the entity id owned by identity under role, or 0.
func (r *Registry) Resolve(role Role, identity string) uint64 {
	return r.owners[role][identity]
}

// Authorize resolves identity to its entity id under role, failing with
// ErrNotOwner when there is none. Every "act as my own entity" operation
// goes through here.
func (r *Registry) Authorize(role Role, identity string) (uint64, error) {
	id := r.owners[role][identity]
	if id == 0 {
		return 0, fmt.Errorf("%w: %s has no %s", ErrNotOwner, identity, role)
	}
	return id, nil
}
