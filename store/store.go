// Package store provides the PostgreSQL-backed implementations of the
// capability interfaces the services consume.
package store

import (
	"errors"

	"gorm.io/gorm"

	"merch-loyalty-system/services"
)

// mapErr translates gorm errors into the service-level sentinels. Requires
// the DB to be opened with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return services.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return services.ErrConflict
	default:
		return err
	}
}
