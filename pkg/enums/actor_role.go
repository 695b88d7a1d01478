package enums

import "fmt"

// ActorRole identifies who is calling the API.
type ActorRole string

const (
	RoleBuyer    ActorRole = "buyer"
	RoleSupplier ActorRole = "supplier"
	RoleAdmin    ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	RoleBuyer,
	RoleSupplier,
	RoleAdmin,
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if r == candidate {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
