package journal

import (
	"log/slog"
	"time"

	"github.com/sigefi/budget-approval/internal/workflow"
)

// Service runs the journal-level sign-off chain: one validator per rank,
// acted on strictly in ascending order, no shared tiers and no balance
// mutation. It is the simpler sibling of the per-demande chain.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Outcome of an approval on the journal chain.
const (
	OutcomeAwaitingNext = "awaiting_next_validator"
	OutcomeValidated    = "validated"
)

func entriesOf(validators []*Validator) []workflow.Entry {
	entries := make([]workflow.Entry, len(validators))
	for i, v := range validators {
		entries[i] = workflow.Entry{
			UserID:  v.UserID,
			Rang:    v.Rang,
			Pending: v.Statut == ValidateurEnAttente,
		}
	}
	return entries
}

// Valider records the caller's approval. When a later rank remains the
// journal stays pending; otherwise it flips to validated.
func (s *Service) Valider(journalID, userID int64, commentaire string) (string, error) {
	var outcome string

	err := s.repo.Transaction(func(tx Repository) error {
		jr, err := tx.GetByID(journalID)
		if err != nil {
			return err
		}
		if jr.Statut != StatutEnAttente {
			return ErrJournalFinalized
		}

		validators, err := tx.ValidatorsForJournal(journalID)
		if err != nil {
			return err
		}

		current, ok := s.currentValidator(validators, userID)
		if !ok {
			return ErrNotCurrentValidator
		}

		claimed, err := tx.ClaimValidator(current.ID, ValidateurApprouve, commentaire, time.Now())
		if err != nil {
			return err
		}
		if !claimed {
			// Decided between our read and the update.
			return ErrNotCurrentValidator
		}

		current.Statut = ValidateurApprouve
		if _, stillPending := workflow.ActiveRank(entriesOf(validators)); stillPending {
			outcome = OutcomeAwaitingNext
			return nil
		}

		outcome = OutcomeValidated
		return tx.UpdateStatut(journalID, StatutValide)
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("journal validation recorded",
		"journal_id", journalID,
		"user_id", userID,
		"outcome", outcome)
	return outcome, nil
}

// Refuser records a rejection and immediately finalizes the journal chain.
// Later ranks are left untouched; they are simply never asked to act.
func (s *Service) Refuser(journalID, userID int64, commentaire string) error {
	err := s.repo.Transaction(func(tx Repository) error {
		jr, err := tx.GetByID(journalID)
		if err != nil {
			return err
		}
		if jr.Statut != StatutEnAttente {
			return ErrJournalFinalized
		}

		validators, err := tx.ValidatorsForJournal(journalID)
		if err != nil {
			return err
		}

		current, ok := s.currentValidator(validators, userID)
		if !ok {
			return ErrNotCurrentValidator
		}

		claimed, err := tx.ClaimValidator(current.ID, ValidateurRefuse, commentaire, time.Now())
		if err != nil {
			return err
		}
		if !claimed {
			return ErrNotCurrentValidator
		}

		return tx.UpdateStatut(journalID, StatutRefuse)
	})
	if err != nil {
		return err
	}

	s.logger.Info("journal rejected",
		"journal_id", journalID,
		"user_id", userID)
	return nil
}

// AValider lists the journals where the caller is next in line.
func (s *Service) AValider(userID int64) ([]*Journal, error) {
	journaux, err := s.repo.JournauxAValider(userID)
	if err != nil {
		s.logger.Error("failed to list journals awaiting validation", "error", err, "user_id", userID)
		return nil, err
	}
	return journaux, nil
}

// currentValidator returns the caller's entry when the caller is the single
// next-in-line validator.
func (s *Service) currentValidator(validators []*Validator, userID int64) (*Validator, bool) {
	next, ok := workflow.NextInLine(entriesOf(validators))
	if !ok || next != userID {
		return nil, false
	}
	for _, v := range validators {
		if v.UserID == userID && v.Statut == ValidateurEnAttente {
			return v, true
		}
	}
	return nil, false
}
