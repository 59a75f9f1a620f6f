package db

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

func IsUniqueConstraintError(err error) bool {
	return isConstraintError(err, sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey)
}

func IsForeignKeyError(err error) bool {
	return isConstraintError(err, sqlite3.ErrConstraintForeignKey)
}

func isConstraintError(err error, codes ...sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	if sqliteErr.Code != sqlite3.ErrConstraint {
		return false
	}

	for _, code := range codes {
		if sqliteErr.ExtendedCode == code {
			return true
		}
	}
	return false
}
