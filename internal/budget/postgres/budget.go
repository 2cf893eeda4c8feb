package postgres

import (
	"github.com/sigefi/budget-approval/internal/budget"
	"gorm.io/gorm"
)

// BudgetRepository implements budget.Repository using GORM.
type BudgetRepository struct {
	db *gorm.DB
}

func NewBudgetRepository(db *gorm.DB) budget.Repository {
	return &BudgetRepository{db: db}
}

func (r *BudgetRepository) GetByID(id int64) (*budget.Budget, error) {
	var b budget.Budget
	err := r.db.Where("id = ?", id).First(&b).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, budget.ErrBudgetNotFound
		}
		return nil, err
	}
	return &b, nil
}
