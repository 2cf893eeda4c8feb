package demande

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CreateDemandeDTO is the request payload for creating a demande.
type CreateDemandeDTO struct {
	Type             string           `json:"type"`
	JournalID        *int64           `json:"journal_id,omitempty"`
	DateDemande      time.Time        `json:"date"`
	DateJustificatif *time.Time       `json:"date_justificatif,omitempty"`
	Justificatif     string           `json:"justificatif,omitempty"`
	ResponsableID    *int64           `json:"responsable_id,omitempty"`
	Description      string           `json:"description"`
	MontantTotal     decimal.Decimal  `json:"montant_total"`
	Details          []CreateDetailDTO `json:"details"`
}

type CreateDetailDTO struct {
	Nature       string          `json:"nature"`
	Libelle      string          `json:"libelle"`
	Beneficiaire string          `json:"beneficiaire,omitempty"`
	Montant      decimal.Decimal `json:"montant"`
	AvecNIF      bool            `json:"avec_nif,omitempty"`
	NumeroCompte *string         `json:"numero_compte,omitempty"`
	BudgetID     *int64          `json:"budget_id,omitempty"`
}

func (dto CreateDemandeDTO) Validate() error {
	if !ValidType(dto.Type) {
		return errors.New("type must be one of DED, Recette, ERD")
	}
	if dto.DateDemande.IsZero() {
		return errors.New("date is required")
	}
	if len(dto.Details) == 0 {
		return errors.New("at least one detail line is required")
	}
	if dto.Justificatif != "" && dto.Justificatif != JustificatifFourni && dto.Justificatif != JustificatifPasEncore {
		return errors.New("justificatif must be 'provided' or 'not_yet'")
	}
	for i, d := range dto.Details {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("detail %d: %w", i+1, err)
		}
	}
	if !dto.MontantTotal.Equal(dto.SignedTotal()) {
		return ErrMontantMismatch
	}
	return nil
}

func (dto CreateDetailDTO) Validate() error {
	if !ValidNature(dto.Nature) {
		return errors.New("nature must be one of achat, depense, recette, autre")
	}
	if dto.Libelle == "" {
		return errors.New("libelle is required")
	}
	if !dto.Montant.IsPositive() {
		return errors.New("montant must be greater than 0")
	}
	return nil
}

// SignedTotal applies the type's sign convention to the detail amounts.
func (dto CreateDemandeDTO) SignedTotal() decimal.Decimal {
	montants := make([]decimal.Decimal, len(dto.Details))
	for i, d := range dto.Details {
		montants[i] = d.Montant
	}
	return SignedTotal(dto.Type, montants)
}

// DecisionDTO is the payload for approving or rejecting a validation step.
type DecisionDTO struct {
	Commentaire     string `json:"commentaire,omitempty"`
	SignatureBase64 string `json:"signatureBase64,omitempty"`
}

// ValidateForReject enforces the comment convention on rejection.
func (dto DecisionDTO) ValidateForReject() error {
	if dto.Commentaire == "" {
		return errors.New("commentaire is required when rejecting a demande")
	}
	return nil
}
