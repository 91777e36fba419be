package models

import "time"

const (
	RoleAdministrator = "administrator"
	RoleBendahara     = "bendahara" // treasurer, verifies transactions
	RoleOperator      = "operator"  // front desk, records transactions
)

// Role represents user roles with numeric primary key
type Role struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string `gorm:"size:32;uniqueIndex;not null"`
	Description string `gorm:"size:255"`
}

// MasterRoles is the seeded set of roles.
func MasterRoles() []Role {
	return []Role{
		{Name: RoleAdministrator, Description: "full access"},
		{Name: RoleBendahara, Description: "treasurer, verifies savings transactions"},
		{Name: RoleOperator, Description: "front desk, records savings transactions"},
	}
}
