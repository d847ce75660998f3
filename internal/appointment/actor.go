package appointment

import "strings"

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleDoctor     Role = "DOCTOR"
	RolePharmacist Role = "PHARMACIST"
	RolePatient    Role = "PATIENT"
)

// ParseRole accepts a role token in any case.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleDoctor, RolePharmacist, RolePatient:
		return r, true
	}
	return "", false
}

// Actor is the caller of a lifecycle operation. The zero value is an anonymous guest.
type Actor struct {
	ID   string
	Role Role
}

type Capability int

const (
	CapabilityDoctor Capability = iota + 1
	CapabilityAdmin
	CapabilityStaff
)

func (c Capability) String() string {
	switch c {
	case CapabilityDoctor:
		return "doctor"
	case CapabilityAdmin:
		return "admin"
	case CapabilityStaff:
		return "staff"
	}
	return "unknown"
}

func (a Actor) Anonymous() bool {
	return a.Role == ""
}

func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleDoctor || a.Role == RolePharmacist
}

func (a Actor) Has(c Capability) bool {
	switch c {
	case CapabilityDoctor:
		return a.Role == RoleDoctor
	case CapabilityAdmin:
		return a.Role == RoleAdmin
	case CapabilityStaff:
		return a.IsStaff()
	}
	return false
}
