package auth

import (
	"context"
	"slices"
)

const (
	RoleEmployee    = "Employee"
	RoleManager     = "Manager"
	RoleHR          = "HR"
	RoleSystemAdmin = "SystemAdmin"
)

const (
	PermPayrollRead    = "payroll.read"
	PermPayrollWrite   = "payroll.write"
	PermPayrollRun     = "payroll.run"
	PermPayrollApprove = "payroll.approve"
	PermAuditRead      = "audit.read"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermPayrollWrite,
	PermPayrollRun,
	PermPayrollApprove,
	PermAuditRead,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermPayrollRead,
	},
	RoleManager: {
		PermPayrollRead,
		PermPayrollApprove,
	},
	RoleHR: {
		PermPayrollRead,
		PermPayrollWrite,
		PermPayrollRun,
		PermPayrollApprove,
		PermAuditRead,
	},
	RoleSystemAdmin: DefaultPermissions,
}

// StaticPermissions answers permission checks from RolePermissions. Roles are
// matched by name, the value carried in the token.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(_ context.Context, role, permission string) (bool, error) {
	return slices.Contains(RolePermissions[role], permission), nil
}
