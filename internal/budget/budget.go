package budget

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Budget is an annual envelope per budget code, broken down by quarter. The
// running Restant figure is maintained by the surrounding record-management
// layer; the approval engine only consults it.
type Budget struct {
	ID         int64           `json:"id" gorm:"primaryKey"`
	Code       string          `json:"code" gorm:"uniqueIndex;not null"`
	Libelle    string          `json:"libelle" gorm:"column:libelle;not null"`
	Annee      int             `json:"annee" gorm:"column:annee;not null"`
	MontantT1  decimal.Decimal `json:"montant_t1" gorm:"column:montant_t1;type:numeric(14,2)"`
	MontantT2  decimal.Decimal `json:"montant_t2" gorm:"column:montant_t2;type:numeric(14,2)"`
	MontantT3  decimal.Decimal `json:"montant_t3" gorm:"column:montant_t3;type:numeric(14,2)"`
	MontantT4  decimal.Decimal `json:"montant_t4" gorm:"column:montant_t4;type:numeric(14,2)"`
	Restant    decimal.Decimal `json:"restant" gorm:"column:restant;type:numeric(14,2)"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (Budget) TableName() string {
	return "budgets"
}

// MontantAnnuel is the whole-year envelope.
func (b *Budget) MontantAnnuel() decimal.Decimal {
	return b.MontantT1.Add(b.MontantT2).Add(b.MontantT3).Add(b.MontantT4)
}

type Repository interface {
	GetByID(id int64) (*Budget, error)
}

var ErrBudgetNotFound = errors.New("budget not found")
