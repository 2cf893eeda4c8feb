package demande

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sigefi/budget-approval/internal/auth"
	"github.com/sigefi/budget-approval/internal/budget"
	"github.com/sigefi/budget-approval/internal/journal"
	"github.com/sigefi/budget-approval/internal/workflow"
)

// Repository is the data access surface of the validation engine. Transaction
// hands back a repository bound to one database transaction; every multi-step
// mutation runs through it so partial writes are never observable.
type Repository interface {
	Transaction(fn func(Repository) error) error

	CreateDemande(d *Demande) error
	GetByID(id int64) (*Demande, error)
	UpdateStatut(id int64, statut string, approvedAt *time.Time, soldeApres *decimal.Decimal) error

	ValidationsForDemande(demandeID int64) ([]*Validation, error)
	// ClaimValidation conditionally moves a pending step to a terminal
	// status. It reports false when the step was not pending anymore, which
	// callers must treat as "not your turn": the conditional update is what
	// serializes two validators racing on the same step.
	ClaimValidation(id int64, statut, commentaire string, signatureURL *string, decidedAt time.Time) (bool, error)
	PromoteRank(demandeID int64, rang int) error
	CancelRanksAbove(demandeID int64, rang int) error
	PendingAtRank(demandeID int64, rang int) (int64, error)

	RosterForJournal(journalID int64) ([]*journal.Validator, error)
	GetJournal(id int64) (*journal.Journal, error)
	UpdateJournalSolde(id int64, solde decimal.Decimal) error

	GetUser(id int64) (*auth.User, error)
	FirstUserWithRole(role auth.Role, excludeUserID int64) (*auth.User, error)
	RolesForUsers(ids []int64) (map[int64]auth.Role, error)

	AValider(userID int64) ([]*Demande, error)
	Finalisees(limit, offset int) ([]*Demande, error)
	ByUser(userID int64, limit, offset int) ([]*Demande, error)
	DAFAValider(userID int64, threshold decimal.Decimal) ([]*Demande, error)
}

// Approval outcomes reported to the caller.
const (
	OutcomeAwaitingPeers = "awaiting_peer_validators"
	OutcomeTierCleared   = "tier_cleared"
	OutcomeApproved      = "approved"
)

// Engine drives the demande lifecycle: it seeds the validation chain from
// the journal roster at creation, applies approve/reject transitions in
// rank order, and mutates the journal balance once, at final approval.
type Engine struct {
	repo         Repository
	budgets      budget.Repository
	signatures   *SignatureStore
	dafThreshold decimal.Decimal
	logger       *slog.Logger
}

func NewEngine(repo Repository, budgets budget.Repository, signatures *SignatureStore, dafThreshold decimal.Decimal, logger *slog.Logger) *Engine {
	return &Engine{
		repo:         repo,
		budgets:      budgets,
		signatures:   signatures,
		dafThreshold: dafThreshold,
		logger:       logger,
	}
}

// CreateDemande inserts the demande, its line items and the validation chain
// in one transaction. The chain is the journal roster minus the requester,
// plus a finance-director step appended above every other rank when the
// total crosses the configured threshold and no remaining validator holds
// that role.
func (e *Engine) CreateDemande(user *auth.User, dto CreateDemandeDTO) (*Demande, error) {
	if err := dto.Validate(); err != nil {
		e.logger.Warn("demande validation failed", "error", err, "user_id", user.ID)
		return nil, err
	}

	if err := e.checkBudgets(dto.Details); err != nil {
		return nil, err
	}

	justificatif := dto.Justificatif
	if justificatif == "" {
		justificatif = JustificatifPasEncore
	}

	d := &Demande{
		UserID:           user.ID,
		Type:             dto.Type,
		JournalID:        dto.JournalID,
		DateDemande:      dto.DateDemande,
		DateJustificatif: dto.DateJustificatif,
		Justificatif:     justificatif,
		ResponsableID:    dto.ResponsableID,
		Description:      dto.Description,
		MontantTotal:     dto.MontantTotal,
		Statut:           StatutEnAttente,
	}
	for _, dd := range dto.Details {
		d.Details = append(d.Details, &Detail{
			Nature:       dd.Nature,
			Libelle:      dd.Libelle,
			Beneficiaire: dd.Beneficiaire,
			Montant:      dd.Montant,
			AvecNIF:      dd.AvecNIF,
			NumeroCompte: dd.NumeroCompte,
			BudgetID:     dd.BudgetID,
			Statut:       StatutEnAttente,
		})
	}

	err := e.repo.Transaction(func(tx Repository) error {
		steps, err := e.seedValidations(tx, d, user)
		if err != nil {
			return err
		}
		d.Validations = steps
		return tx.CreateDemande(d)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("demande created",
		"demande_id", d.ID,
		"user_id", user.ID,
		"type", d.Type,
		"montant_total", d.MontantTotal,
		"validations", len(d.Validations))
	return d, nil
}

// checkBudgets verifies every budget imputation on the detail lines.
func (e *Engine) checkBudgets(details []CreateDetailDTO) error {
	seen := make(map[int64]bool)
	for _, d := range details {
		if d.BudgetID == nil || seen[*d.BudgetID] {
			continue
		}
		seen[*d.BudgetID] = true
		if _, err := e.budgets.GetByID(*d.BudgetID); err != nil {
			return err
		}
	}
	return nil
}

// seedValidations builds the validation chain for a new demande.
func (e *Engine) seedValidations(tx Repository, d *Demande, requester *auth.User) ([]*Validation, error) {
	var roster []*journal.Validator
	if d.JournalID != nil {
		if _, err := tx.GetJournal(*d.JournalID); err != nil {
			return nil, err
		}
		var err error
		roster, err = tx.RosterForJournal(*d.JournalID)
		if err != nil {
			return nil, err
		}
	}

	// A requester never approves their own demande.
	eligible := make([]*journal.Validator, 0, len(roster))
	maxRang := 0
	userIDs := make([]int64, 0, len(roster))
	for _, entry := range roster {
		if entry.UserID == requester.ID {
			continue
		}
		eligible = append(eligible, entry)
		userIDs = append(userIDs, entry.UserID)
		if entry.Rang > maxRang {
			maxRang = entry.Rang
		}
	}

	steps := make([]*Validation, 0, len(eligible)+1)
	for _, entry := range eligible {
		steps = append(steps, &Validation{
			UserID: entry.UserID,
			Rang:   entry.Rang,
			Statut: ValidationInitiale,
		})
	}

	if d.MontantTotal.GreaterThan(e.dafThreshold) {
		hasDAF, err := e.rosterHasFinanceDirector(tx, userIDs)
		if err != nil {
			return nil, err
		}
		if !hasDAF {
			// The requester never countersigns their own demande, so the
			// lookup excludes them; the step is skipped only when no other
			// finance director exists.
			daf, err := tx.FirstUserWithRole(auth.RoleDAF, requester.ID)
			switch {
			case err == auth.ErrUserNotFound && requester.Role == auth.RoleDAF:
				// requester is the only finance director
			case err == auth.ErrUserNotFound:
				return nil, ErrNoValidatorAvailable
			case err != nil:
				return nil, err
			default:
				steps = append(steps, &Validation{
					UserID: daf.ID,
					Rang:   maxRang + 1,
					Statut: ValidationInitiale,
				})
			}
		}
	}

	if len(steps) == 0 {
		return nil, ErrNoValidatorAvailable
	}

	firstRang := steps[0].Rang
	for _, s := range steps {
		if s.Rang < firstRang {
			firstRang = s.Rang
		}
	}
	for _, s := range steps {
		if s.Rang == firstRang {
			s.Statut = ValidationEnAttente
		}
	}

	return steps, nil
}

func (e *Engine) rosterHasFinanceDirector(tx Repository, userIDs []int64) (bool, error) {
	if len(userIDs) == 0 {
		return false, nil
	}
	roles, err := tx.RolesForUsers(userIDs)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if role.IsFinanceDirector() {
			return true, nil
		}
	}
	return false, nil
}

// Valider applies the caller's approval to their pending step and advances
// the chain: same-rank peers first, then the next rank, and when none
// remains, finalization with the balance mutation. Everything happens in one
// transaction; a failure anywhere leaves the demande untouched.
func (e *Engine) Valider(demandeID int64, user *auth.User, dto DecisionDTO) (string, error) {
	if !user.Role.CanApprove() {
		return "", ErrRoleCannotApprove
	}

	var signatureURL *string
	if dto.SignatureBase64 != "" {
		url, err := e.signatures.Save(dto.SignatureBase64)
		if err != nil {
			return "", err
		}
		signatureURL = &url
	}

	var outcome string
	err := e.repo.Transaction(func(tx Repository) error {
		d, err := tx.GetByID(demandeID)
		if err != nil {
			return err
		}
		if d.IsTerminal() {
			return ErrDemandeTerminal
		}

		step, err := e.pendingStepFor(tx, demandeID, user.ID)
		if err != nil {
			return err
		}

		now := time.Now()
		claimed, err := tx.ClaimValidation(step.ID, ValidationApprouvee, dto.Commentaire, signatureURL, now)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrNotCurrentValidator
		}

		remaining, err := tx.PendingAtRank(demandeID, step.Rang)
		if err != nil {
			return err
		}
		if remaining > 0 {
			outcome = OutcomeAwaitingPeers
			return nil
		}

		steps, err := tx.ValidationsForDemande(demandeID)
		if err != nil {
			return err
		}
		if next, ok := nextRank(steps, step.Rang); ok {
			outcome = OutcomeTierCleared
			return tx.PromoteRank(demandeID, next)
		}

		outcome = OutcomeApproved
		return e.finalize(tx, d, now)
	})
	if err != nil {
		return "", err
	}

	e.logger.Info("demande approval recorded",
		"demande_id", demandeID,
		"user_id", user.ID,
		"outcome", outcome)
	return outcome, nil
}

// Refuser rejects the caller's pending step, cancels every higher-rank step
// and finalizes the demande as rejected. The journal balance is untouched.
func (e *Engine) Refuser(demandeID int64, user *auth.User, dto DecisionDTO) error {
	if !user.Role.CanApprove() {
		return ErrRoleCannotApprove
	}
	if err := dto.ValidateForReject(); err != nil {
		return err
	}

	err := e.repo.Transaction(func(tx Repository) error {
		d, err := tx.GetByID(demandeID)
		if err != nil {
			return err
		}
		if d.IsTerminal() {
			return ErrDemandeTerminal
		}

		step, err := e.pendingStepFor(tx, demandeID, user.ID)
		if err != nil {
			return err
		}

		claimed, err := tx.ClaimValidation(step.ID, ValidationRefusee, dto.Commentaire, nil, time.Now())
		if err != nil {
			return err
		}
		if !claimed {
			return ErrNotCurrentValidator
		}

		if err := tx.CancelRanksAbove(demandeID, step.Rang); err != nil {
			return err
		}
		return tx.UpdateStatut(demandeID, StatutRefusee, nil, nil)
	})
	if err != nil {
		return err
	}

	e.logger.Info("demande rejected",
		"demande_id", demandeID,
		"user_id", user.ID)
	return nil
}

// finalize flips the demande to approved and applies the balance movement to
// its journal. The journal balance is re-read inside the transaction so two
// finalizations on the same journal serialize on the row instead of writing
// stale in-memory values.
func (e *Engine) finalize(tx Repository, d *Demande, approvedAt time.Time) error {
	var soldeApres *decimal.Decimal
	if d.JournalID != nil {
		jr, err := tx.GetJournal(*d.JournalID)
		if err != nil {
			return err
		}
		newSolde := jr.Solde.Add(BalanceDelta(d.Type, d.MontantTotal))
		if err := tx.UpdateJournalSolde(jr.ID, newSolde); err != nil {
			return err
		}
		soldeApres = &newSolde
	}

	if err := tx.UpdateStatut(d.ID, StatutValidee, &approvedAt, soldeApres); err != nil {
		return err
	}

	e.logger.Info("demande finalized",
		"demande_id", d.ID,
		"type", d.Type,
		"montant_total", d.MontantTotal)
	return nil
}

// pendingStepFor returns the caller's pending step on the demande.
func (e *Engine) pendingStepFor(tx Repository, demandeID, userID int64) (*Validation, error) {
	steps, err := tx.ValidationsForDemande(demandeID)
	if err != nil {
		return nil, err
	}
	for _, s := range steps {
		if s.UserID == userID && s.Statut == ValidationEnAttente {
			return s, nil
		}
	}
	return nil, ErrNotCurrentValidator
}

// nextRank finds the lowest rank above the given one that still holds
// unopened steps. Ranks need not be contiguous; a roster of ranks 1 and 3
// advances from 1 straight to 3.
func nextRank(steps []*Validation, after int) (int, bool) {
	next := 0
	found := false
	for _, s := range steps {
		if s.Statut != ValidationInitiale || s.Rang <= after {
			continue
		}
		if !found || s.Rang < next {
			next = s.Rang
			found = true
		}
	}
	return next, found
}

// IsCurrentValidator reports whether the user holds a pending step at the
// active rank of the demande. It reads no mutable state beyond the steps, so
// repeated calls without an intervening transition always agree.
func (e *Engine) IsCurrentValidator(demandeID, userID int64) (bool, error) {
	steps, err := e.repo.ValidationsForDemande(demandeID)
	if err != nil {
		return false, err
	}
	entries := make([]workflow.Entry, len(steps))
	for i, s := range steps {
		entries[i] = workflow.Entry{
			UserID:  s.UserID,
			Rang:    s.Rang,
			Pending: s.Statut == ValidationEnAttente,
		}
	}
	return workflow.IsTurn(entries, userID), nil
}

// GetByID loads a demande with details and validations, restricted to its
// owner, its assigned validators and admins.
func (e *Engine) GetByID(demandeID int64, user *auth.User) (*Demande, error) {
	d, err := e.repo.GetByID(demandeID)
	if err != nil {
		return nil, err
	}
	if d.UserID == user.ID || user.Role == auth.RoleAdmin {
		return d, nil
	}
	for _, s := range d.Validations {
		if s.UserID == user.ID {
			return d, nil
		}
	}
	e.logger.Warn("unauthorized access to demande", "demande_id", demandeID, "user_id", user.ID)
	return nil, ErrUnauthorizedAccess
}

// AValider lists the demandes where the user sits at the active rank.
func (e *Engine) AValider(user *auth.User) ([]*Demande, error) {
	if !user.Role.CanApprove() {
		return nil, ErrRoleCannotApprove
	}
	return e.repo.AValider(user.ID)
}

// Finalisees lists terminal demandes.
func (e *Engine) Finalisees(limit, offset int) ([]*Demande, error) {
	return e.repo.Finalisees(limit, offset)
}

// ByUser lists the caller's own demandes.
func (e *Engine) ByUser(userID int64, limit, offset int) ([]*Demande, error) {
	return e.repo.ByUser(userID, limit, offset)
}

// DAFAValider is the finance-director queue: above-threshold demandes where
// the caller is the active validator.
func (e *Engine) DAFAValider(user *auth.User) ([]*Demande, error) {
	if !user.Role.IsFinanceDirector() {
		return nil, ErrRoleCannotApprove
	}
	return e.repo.DAFAValider(user.ID, e.dafThreshold)
}
