package service

import (
	"database/sql"

	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

// mapNotFound converts sql.ErrNoRows into a typed NOT_FOUND and wraps
// everything else as internal.
func mapNotFound(err error, notFoundMsg, internalMsg string) error {
	if err == sql.ErrNoRows {
		return appErrors.Clone(appErrors.ErrNotFound, notFoundMsg)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internalMsg)
}
