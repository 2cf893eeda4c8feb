package journal

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Journal is a project ledger. Solde is the running balance, mutated exactly
// once per demande at final approval. Statut tracks the journal-level
// sign-off chain, which is independent of per-demande validation.
type Journal struct {
	ID        int64           `json:"id" gorm:"primaryKey"`
	Nom       string          `json:"nom" gorm:"column:nom;not null"`
	Projet    string          `json:"projet" gorm:"column:projet"`
	Solde     decimal.Decimal `json:"solde" gorm:"column:solde;type:numeric(14,2)"`
	Statut    string          `json:"statut" gorm:"column:statut;default:pending"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Journal) TableName() string {
	return "journaux"
}

// Validator is one roster entry: who must approve for this journal, and in
// what order. The entry doubles as the validator's decision record on the
// journal-level chain, so there is exactly one status per (journal, user).
type Validator struct {
	ID          int64      `json:"id" gorm:"primaryKey"`
	JournalID   int64      `json:"journal_id" gorm:"column:journal_id;not null;index"`
	UserID      int64      `json:"user_id" gorm:"column:user_id;not null"`
	Rang        int        `json:"rang" gorm:"column:rang;not null"`
	Statut      string     `json:"statut" gorm:"column:statut;default:pending"`
	Commentaire string     `json:"commentaire" gorm:"column:commentaire"`
	DecidedAt   *time.Time `json:"decided_at,omitempty" gorm:"column:decided_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Validator) TableName() string {
	return "journal_validateurs"
}

// Journal statuses.
const (
	StatutEnAttente = "pending"
	StatutValide    = "validated"
	StatutRefuse    = "rejected"
)

// Validator entry statuses.
const (
	ValidateurEnAttente = "pending"
	ValidateurApprouve  = "approved"
	ValidateurRefuse    = "rejected"
)

// Repository is the journal data access surface. Transaction returns a
// repository bound to a single database transaction; every multi-step
// mutation in the service goes through it.
type Repository interface {
	Transaction(fn func(Repository) error) error

	GetByID(id int64) (*Journal, error)
	UpdateStatut(journalID int64, statut string) error

	ValidatorsForJournal(journalID int64) ([]*Validator, error)
	// ClaimValidator conditionally moves a pending entry to a terminal
	// status; it reports false when the entry was already decided.
	ClaimValidator(id int64, statut, commentaire string, decidedAt time.Time) (bool, error)

	JournauxAValider(userID int64) ([]*Journal, error)
}

var (
	ErrJournalNotFound     = errors.New("journal not found")
	ErrNotCurrentValidator = errors.New("caller is not the current journal validator")
	ErrJournalFinalized    = errors.New("journal validation already finalized")
)
