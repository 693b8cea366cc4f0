package repository

import (
	"gorm.io/gorm"

	"usercrud/internal/model"
)

// UserRepository defines user persistence operations.
type UserRepository = Repository[model.User, uint]

// NewUserRepository builds a GORM-backed user repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return NewRepository[model.User, uint](db)
}
