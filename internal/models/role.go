package models

import (
	"fmt"
	"strconv"
)

// Role is an ordered privilege level. Every check is "role >= required".
type Role int

const (
	RoleGuest Role = iota
	RoleUser
	RoleOrganizer
	RoleAdmin
	// RoleCreator is reserved; no route requires it.
	RoleCreator
)

var roleNames = [...]string{"guest", "user", "organizer", "admin", "creator"}

func (r Role) Valid() bool {
	return r >= RoleGuest && r <= RoleCreator
}

func (r Role) AtLeast(required Role) bool {
	return r >= required
}

func (r Role) String() string {
	if !r.Valid() {
		return "role(" + strconv.Itoa(int(r)) + ")"
	}
	return roleNames[r]
}

func ParseRole(v int) (Role, error) {
	r := Role(v)
	if !r.Valid() {
		return RoleGuest, fmt.Errorf("unknown role %d", v)
	}
	return r, nil
}
