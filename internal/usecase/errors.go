package usecase

import (
	"errors"
	"fmt"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/repository"
)

// ErrRoleNotFound is returned when a referenced role does not exist.
var ErrRoleNotFound = errors.New("role not found")

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

func wrapStore(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
