package enums

import "fmt"

// Role maps to the user_role enum in Postgres. Roles form a strict ladder.
type Role string

const (
	RoleRegular   Role = "regular"
	RoleCashier   Role = "cashier"
	RoleManager   Role = "manager"
	RoleSuperuser Role = "superuser"
)

var validRoles = []Role{
	RoleRegular,
	RoleCashier,
	RoleManager,
	RoleSuperuser,
}

// IsValid checks whether the role matches the canonical enum.
func (r Role) IsValid() bool {
	return r.rank() >= 0
}

func (r Role) rank() int {
	for i, candidate := range validRoles {
		if candidate == r {
			return i
		}
	}
	return -1
}

// AtLeast reports whether r sits at or above min on the ladder. Superuser
// satisfies every minimum.
func (r Role) AtLeast(min Role) bool {
	if !r.IsValid() || !min.IsValid() {
		return false
	}
	return r.rank() >= min.rank()
}

// ParseRole converts raw strings into Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
