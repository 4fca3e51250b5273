package domain

import "fmt"

// Role partitions identities in the presence directory.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
)

// ParseRole validates a stored or configured role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCustomer, RoleAgent:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Identity is resolved once at handshake and never changes for the lifetime
// of a connection.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

func (i Identity) IsAgent() bool {
	return i.Role == RoleAgent
}

func (i Identity) IsCustomer() bool {
	return i.Role == RoleCustomer
}
