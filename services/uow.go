package services

import (
	"context"

	"gorm.io/gorm"
)

// UnitOfWork runs a closure inside one database transaction. Everything inside fn
// must use tx; the transaction commits only if fn returns nil.
type UnitOfWork struct {
	DB *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{DB: db}
}

func (u *UnitOfWork) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return u.DB.WithContext(ctx).Transaction(fn)
}
