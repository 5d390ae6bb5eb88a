package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users           *UserRepository
	Roles           *RoleRepository
	UserRoles       *UserRoleRepository
	PasswordHistory *PasswordHistoryRepository
	SecurityLogs    *SecurityLogRepository
	Settings        *SettingsRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool pgPool) *Repositories {
	return &Repositories{
		Users:           NewUserRepository(pool),
		Roles:           NewRoleRepository(pool),
		UserRoles:       NewUserRoleRepository(pool),
		PasswordHistory: NewPasswordHistoryRepository(pool),
		SecurityLogs:    NewSecurityLogRepository(pool),
		Settings:        NewSettingsRepository(pool),
	}
}
