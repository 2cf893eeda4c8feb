package postgres

import (
	"github.com/sigefi/budget-approval/internal/auth"
	"gorm.io/gorm"
)

// UserRepository implements auth.Repository using GORM.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) auth.Repository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(id int64) (*auth.User, error) {
	var user auth.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, auth.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
