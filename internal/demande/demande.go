package demande

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Demande is an expense, income or correction request submitted against a
// journal. It owns its line items and the validation chain seeded from the
// journal roster at creation time.
type Demande struct {
	ID               int64            `json:"id" gorm:"primaryKey"`
	UserID           int64            `json:"user_id" gorm:"column:user_id;not null"`
	Type             string           `json:"type" gorm:"column:type;not null"`
	JournalID        *int64           `json:"journal_id,omitempty" gorm:"column:journal_id"`
	DateDemande      time.Time        `json:"date_demande" gorm:"column:date_demande;type:date"`
	DateJustificatif *time.Time       `json:"date_justificatif,omitempty" gorm:"column:date_justificatif;type:date"`
	Justificatif     string           `json:"justificatif" gorm:"column:justificatif;default:not_yet"`
	ResponsableID    *int64           `json:"responsable_id,omitempty" gorm:"column:responsable_id"`
	Description      string           `json:"description" gorm:"column:description"`
	MontantTotal     decimal.Decimal  `json:"montant_total" gorm:"column:montant_total;type:numeric(14,2)"`
	Statut           string           `json:"statut" gorm:"column:statut;default:pending"`
	ApprovedAt       *time.Time       `json:"approved_at,omitempty" gorm:"column:approved_at"`
	SoldeApres       *decimal.Decimal `json:"solde_apres,omitempty" gorm:"column:solde_apres;type:numeric(14,2)"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`

	Details     []*Detail     `json:"details,omitempty" gorm:"foreignKey:DemandeID"`
	Validations []*Validation `json:"validations,omitempty" gorm:"foreignKey:DemandeID"`
}

func (Demande) TableName() string {
	return "demandes"
}

// Detail is one line item. Created in bulk with its parent and immutable
// afterwards.
type Detail struct {
	ID           int64           `json:"id" gorm:"primaryKey"`
	DemandeID    int64           `json:"demande_id" gorm:"column:demande_id;not null;index"`
	Nature       string          `json:"nature" gorm:"column:nature;not null"`
	Libelle      string          `json:"libelle" gorm:"column:libelle;not null"`
	Beneficiaire string          `json:"beneficiaire" gorm:"column:beneficiaire"`
	Montant      decimal.Decimal `json:"montant" gorm:"column:montant;type:numeric(14,2)"`
	AvecNIF      bool            `json:"avec_nif" gorm:"column:avec_nif;default:false"`
	NumeroCompte *string         `json:"numero_compte,omitempty" gorm:"column:numero_compte"`
	BudgetID     *int64          `json:"budget_id,omitempty" gorm:"column:budget_id"`
	Statut       string          `json:"statut" gorm:"column:statut;default:pending"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Detail) TableName() string {
	return "demande_details"
}

// Validation is one step of the approval chain: one row per assigned
// validator, carrying the rank that orders the tiers. All rows for a demande
// are created together; the lowest rank starts pending, the rest initial.
type Validation struct {
	ID           int64      `json:"id" gorm:"primaryKey"`
	DemandeID    int64      `json:"demande_id" gorm:"column:demande_id;not null;index"`
	UserID       int64      `json:"user_id" gorm:"column:user_id;not null"`
	Rang         int        `json:"rang" gorm:"column:rang;not null"`
	Statut       string     `json:"statut" gorm:"column:statut;default:initial"`
	Commentaire  string     `json:"commentaire" gorm:"column:commentaire"`
	DecidedAt    *time.Time `json:"decided_at,omitempty" gorm:"column:decided_at"`
	SignatureURL *string    `json:"signature_url,omitempty" gorm:"column:signature_url"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Validation) TableName() string {
	return "demande_validations"
}

// Demande types.
const (
	TypeDepense    = "DED"
	TypeRecette    = "Recette"
	TypeCorrection = "ERD"
)

// Demande lifecycle statuses.
const (
	StatutEnAttente = "pending"
	StatutValidee   = "approved"
	StatutRefusee   = "rejected"
)

// Justification statuses.
const (
	JustificatifFourni    = "provided"
	JustificatifPasEncore = "not_yet"
)

// Validation step statuses.
const (
	ValidationInitiale  = "initial"
	ValidationEnAttente = "pending"
	ValidationApprouvee = "approved"
	ValidationRefusee   = "rejected"
	ValidationAnnulee   = "cancelled"
)

// Detail natures.
const (
	NatureAchat   = "achat"
	NatureDepense = "depense"
	NatureRecette = "recette"
	NatureAutre   = "autre"
)

func ValidType(t string) bool {
	switch t {
	case TypeDepense, TypeRecette, TypeCorrection:
		return true
	}
	return false
}

func ValidNature(n string) bool {
	switch n {
	case NatureAchat, NatureDepense, NatureRecette, NatureAutre:
		return true
	}
	return false
}

// IsTerminal reports whether the demande reached a final state. Terminal
// demandes are immutable; no validation step can be acted on afterwards.
func (d *Demande) IsTerminal() bool {
	return d.Statut == StatutValidee || d.Statut == StatutRefusee
}

// SignedTotal computes the demande total from its line items using the
// type's sign convention. DED and Recette totals are the plain sum; an ERD
// mirrors a double-entry correction, first line a credit and every following
// line a debit against the prior expense.
func SignedTotal(demandeType string, montants []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for i, m := range montants {
		if demandeType == TypeCorrection && i > 0 {
			total = total.Sub(m)
			continue
		}
		total = total.Add(m)
	}
	return total
}

// BalanceDelta is the journal balance movement applied at finalization:
// expenses draw the balance down, income and correction credits restore it.
func BalanceDelta(demandeType string, montantTotal decimal.Decimal) decimal.Decimal {
	if demandeType == TypeDepense {
		return montantTotal.Neg()
	}
	return montantTotal
}

// Domain errors.
var (
	ErrDemandeNotFound      = errors.New("demande not found")
	ErrNotCurrentValidator  = errors.New("caller has no pending validation step on this demande")
	ErrRoleCannotApprove    = errors.New("caller role cannot approve demandes")
	ErrNoValidatorAvailable = errors.New("no validator available for this demande")
	ErrDemandeTerminal      = errors.New("demande already finalized")
	ErrMontantMismatch      = errors.New("montant_total does not match the signed sum of details")
	ErrUnauthorizedAccess   = errors.New("unauthorized access to demande")
	ErrInvalidSignature     = errors.New("signature payload could not be decoded")
)
