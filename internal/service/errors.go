package service

import (
	"errors"

	"scanhub/internal/apperr"
	"scanhub/internal/repository"
)

// storeErr maps repository sentinels to user-facing errors.
func storeErr(err error, notFound string, conflict string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, repository.ErrConflict) && conflict != "":
		return apperr.Conflict(conflict)
	case errors.Is(err, repository.ErrInvalidReference):
		return apperr.NotFound("Referenced record not found")
	default:
		return apperr.From(err)
	}
}
