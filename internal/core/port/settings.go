package port

import (
	"context"

	"github.com/arklim/payroll-access/internal/core/domain"
)

// SettingsRepository loads the administrator-maintained security settings row.
// It returns repository.ErrNotFound when no row exists.
type SettingsRepository interface {
	GetSecuritySettings(ctx context.Context, defaults domain.SecuritySettings) (domain.SecuritySettings, error)
}

// IdentityVerifier resolves a bearer credential issued by the identity provider.
type IdentityVerifier interface {
	Verify(ctx context.Context, bearer string) (*domain.Principal, error)
}
