package vocab

import (
	"fmt"
	"strings"
)

// Role is the closed set of resource roles a manifest may declare.
type Role string

const (
	RoleCatalogueData                        Role = MRR + "CatalogueData"
	RoleCatalogueModel                       Role = MRR + "CatalogueModel"
	RoleResourceData                         Role = MRR + "ResourceData"
	RoleResourceModel                        Role = MRR + "ResourceModel"
	RoleCatalogueAndResourceModel            Role = MRR + "CatalogueAndResourceModel"
	RoleCompleteCatalogueAndResourceLabels   Role = MRR + "CompleteCatalogueAndResourceLabels"
	RoleIncompleteCatalogueAndResourceLabels Role = MRR + "IncompleteCatalogueAndResourceLabels"
)

var roles = []Role{
	RoleCatalogueData,
	RoleCatalogueModel,
	RoleResourceData,
	RoleResourceModel,
	RoleCatalogueAndResourceModel,
	RoleCompleteCatalogueAndResourceLabels,
	RoleIncompleteCatalogueAndResourceLabels,
}

// ParseRole maps a role IRI to a Role, rejecting anything outside the set.
func ParseRole(iri string) (Role, error) {
	for _, r := range roles {
		if string(r) == iri {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown resource role %q", iri)
}

// Roles returns every known role.
func Roles() []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// RequiresIdentity reports whether artifacts with this role must resolve
// to a main entity.
func (r Role) RequiresIdentity() bool {
	return r == RoleCatalogueData || r == RoleResourceData
}

// IsLabels reports whether the role contributes background labels.
func (r Role) IsLabels() bool {
	return r == RoleCompleteCatalogueAndResourceLabels || r == RoleIncompleteCatalogueAndResourceLabels
}

// Short returns the local name of the role, e.g. "ResourceData".
func (r Role) Short() string {
	return strings.TrimPrefix(string(r), MRR)
}
