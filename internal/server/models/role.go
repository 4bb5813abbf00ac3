package models

// Role is a named bundle of policies. Factory roles are built in and cannot
// be deleted.
type Role struct {
	ID          int64
	Name        string
	FactoryRole bool
}

// Policy is an atomic named permission, e.g. "EditPage".
type Policy struct {
	ID   int64
	Name string
}

type RolePolicyAssignment struct {
	RoleID   int64
	PolicyID int64
}

// AdminRoleName is the factory role seeded with every policy.
const AdminRoleName = "Admin"
