package database

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrNotMember  = errors.New("user is not a member of the room")
	ErrDuplicated = errors.New("duplicate record")
)

type Database struct {
	db *gorm.DB
}

// translate maps gorm errors to this package's sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicated
	default:
		return err
	}
}
