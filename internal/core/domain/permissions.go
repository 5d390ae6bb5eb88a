package domain

// Permission catalog seeded by migrations.
const (
	PermUsersCreate = "users.create"
	PermUsersRead   = "users.read"
	PermUsersUpdate = "users.update"
	PermUsersDelete = "users.delete"
	PermUsersUnlock = "users.unlock"

	PermSettingsRead   = "settings.read"
	PermSettingsUpdate = "settings.update"

	PermPayrollRead   = "payroll.read"
	PermPayrollExport = "payroll.export"

	PermTimesheetRead   = "timesheet.read"
	PermTimesheetUpdate = "timesheet.update"

	PermRolesRead   = "roles.read"
	PermRolesCreate = "roles.create"
	PermRolesUpdate = "roles.update"
	PermRolesDelete = "roles.delete"
	PermRolesAssign = "roles.assign"

	PermSecurityAudit   = "security.audit"
	PermDashboardAccess = "dashboard.access"
)

// System role names.
const (
	RoleEmployee  = "Employee"
	RoleAdmin     = "Admin"
	RoleDeveloper = "Developer"
	RoleHRManager = "HR Manager"
	RoleAuditor   = "Auditor"
)
