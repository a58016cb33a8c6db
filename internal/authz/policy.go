// Package authz maps protected operations to the roles allowed to perform them.
package authz

import "github.com/movielist/apiserver/types"

// Operation names a protected action.
type Operation string

const (
	OpAuthMe        Operation = "auth.me"
	OpAuthLogoutAll Operation = "auth.logout_all"
	OpUserSetRole   Operation = "users.set_role"
	OpMovieList     Operation = "movies.list"
	OpMovieGet      Operation = "movies.get"
	OpMovieCreate   Operation = "movies.create"
	OpMovieUpdate   Operation = "movies.update"
	OpMovieDelete   Operation = "movies.delete"
	OpFileUpload    Operation = "files.upload"
)

// Policy is a capability table. Operations absent from the table are denied.
type Policy map[Operation][]types.Role

var everyone = []types.Role{types.RoleUser, types.RoleAdmin}
var adminOnly = []types.Role{types.RoleAdmin}

// DefaultPolicy returns the capability table of the API.
func DefaultPolicy() Policy {
	return Policy{
		OpAuthMe:        everyone,
		OpAuthLogoutAll: everyone,
		OpUserSetRole:   adminOnly,
		OpMovieList:     everyone,
		OpMovieGet:      everyone,
		OpMovieCreate:   adminOnly,
		OpMovieUpdate:   everyone,
		OpMovieDelete:   adminOnly,
		OpFileUpload:    adminOnly,
	}
}

// Allowed reports whether role may perform op.
func (p Policy) Allowed(op Operation, role types.Role) bool {
	for _, allowed := range p[op] {
		if allowed == role {
			return true
		}
	}
	return false
}
