package cli

import (
	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
)

const (
	exitFailure   = 1
	exitUsage     = 2
	exitNotFound  = 4
	exitConflict  = 5
	exitTemporary = 75
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrValidation):
		return exitUsage
	case domain.IsKind(err, domain.ErrNotFound):
		return exitNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return exitConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return exitTemporary
	default:
		return exitFailure
	}
}
