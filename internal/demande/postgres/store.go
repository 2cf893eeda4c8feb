package postgres

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sigefi/budget-approval/internal/auth"
	"github.com/sigefi/budget-approval/internal/demande"
	"github.com/sigefi/budget-approval/internal/journal"
	"gorm.io/gorm"
)

// Store implements demande.Repository using GORM. One Store spans the
// demande, validation, journal and user tables because the engine's
// transactions cut across all of them.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) demande.Repository {
	return &Store{db: db}
}

func (s *Store) Transaction(fn func(demande.Repository) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) CreateDemande(d *demande.Demande) error {
	// gorm cascades the Details and Validations associations in the same
	// insert, wiring demande_id on every child row.
	return s.db.Create(d).Error
}

func (s *Store) GetByID(id int64) (*demande.Demande, error) {
	var d demande.Demande
	err := s.db.
		Preload("Details").
		Preload("Validations", func(db *gorm.DB) *gorm.DB {
			return db.Order("rang ASC, id ASC")
		}).
		Where("id = ?", id).
		First(&d).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, demande.ErrDemandeNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *Store) UpdateStatut(id int64, statut string, approvedAt *time.Time, soldeApres *decimal.Decimal) error {
	updates := map[string]interface{}{
		"statut":     statut,
		"updated_at": time.Now(),
	}
	if approvedAt != nil {
		updates["approved_at"] = *approvedAt
	}
	if soldeApres != nil {
		updates["solde_apres"] = *soldeApres
	}
	return s.db.Model(&demande.Demande{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) ValidationsForDemande(demandeID int64) ([]*demande.Validation, error) {
	var steps []*demande.Validation
	err := s.db.Where("demande_id = ?", demandeID).
		Order("rang ASC, id ASC").
		Find(&steps).Error
	return steps, err
}

// ClaimValidation is the conditional update that serializes concurrent
// decisions on one step: whoever moves it out of pending first wins, the
// loser sees zero rows affected.
func (s *Store) ClaimValidation(id int64, statut, commentaire string, signatureURL *string, decidedAt time.Time) (bool, error) {
	updates := map[string]interface{}{
		"statut":      statut,
		"commentaire": commentaire,
		"decided_at":  decidedAt,
		"updated_at":  time.Now(),
	}
	if signatureURL != nil {
		updates["signature_url"] = *signatureURL
	}
	res := s.db.Model(&demande.Validation{}).
		Where("id = ? AND statut = ?", id, demande.ValidationEnAttente).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) PromoteRank(demandeID int64, rang int) error {
	return s.db.Model(&demande.Validation{}).
		Where("demande_id = ? AND rang = ? AND statut = ?", demandeID, rang, demande.ValidationInitiale).
		Updates(map[string]interface{}{
			"statut":     demande.ValidationEnAttente,
			"updated_at": time.Now(),
		}).Error
}

func (s *Store) CancelRanksAbove(demandeID int64, rang int) error {
	return s.db.Model(&demande.Validation{}).
		Where("demande_id = ? AND rang > ? AND statut IN ?", demandeID, rang,
			[]string{demande.ValidationInitiale, demande.ValidationEnAttente}).
		Updates(map[string]interface{}{
			"statut":     demande.ValidationAnnulee,
			"updated_at": time.Now(),
		}).Error
}

func (s *Store) PendingAtRank(demandeID int64, rang int) (int64, error) {
	var count int64
	err := s.db.Model(&demande.Validation{}).
		Where("demande_id = ? AND rang = ? AND statut = ?", demandeID, rang, demande.ValidationEnAttente).
		Count(&count).Error
	return count, err
}

func (s *Store) RosterForJournal(journalID int64) ([]*journal.Validator, error) {
	var roster []*journal.Validator
	err := s.db.Where("journal_id = ?", journalID).
		Order("rang ASC, id ASC").
		Find(&roster).Error
	return roster, err
}

func (s *Store) GetJournal(id int64) (*journal.Journal, error) {
	var jr journal.Journal
	err := s.db.Where("id = ?", id).First(&jr).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, journal.ErrJournalNotFound
		}
		return nil, err
	}
	return &jr, nil
}

func (s *Store) UpdateJournalSolde(id int64, solde decimal.Decimal) error {
	return s.db.Model(&journal.Journal{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"solde":      solde,
			"updated_at": time.Now(),
		}).Error
}

func (s *Store) GetUser(id int64) (*auth.User, error) {
	var user auth.User
	err := s.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, auth.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) FirstUserWithRole(role auth.Role, excludeUserID int64) (*auth.User, error) {
	var user auth.User
	err := s.db.Where("role = ? AND is_active = ? AND id <> ?", role, true, excludeUserID).
		Order("id ASC").
		First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, auth.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) RolesForUsers(ids []int64) (map[int64]auth.Role, error) {
	var users []*auth.User
	if err := s.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	roles := make(map[int64]auth.Role, len(users))
	for _, u := range users {
		roles[u.ID] = u.Role
	}
	return roles, nil
}

// activeStepFilter matches pending demandes whose minimum pending rank holds
// a pending step for the given user.
func (s *Store) activeStepFilter(userID int64) *gorm.DB {
	return s.db.Model(&demande.Demande{}).
		Joins("JOIN demande_validations dv ON dv.demande_id = demandes.id").
		Where("demandes.statut = ?", demande.StatutEnAttente).
		Where("dv.user_id = ? AND dv.statut = ?", userID, demande.ValidationEnAttente).
		Where(`dv.rang = (
			SELECT MIN(rang) FROM demande_validations
			WHERE demande_id = demandes.id AND statut = ?
		)`, demande.ValidationEnAttente).
		Group("demandes.id")
}

func (s *Store) AValider(userID int64) ([]*demande.Demande, error) {
	var demandes []*demande.Demande
	err := s.activeStepFilter(userID).
		Order("demandes.created_at ASC").
		Find(&demandes).Error
	return demandes, err
}

func (s *Store) DAFAValider(userID int64, threshold decimal.Decimal) ([]*demande.Demande, error) {
	var demandes []*demande.Demande
	err := s.activeStepFilter(userID).
		Where("demandes.montant_total > ?", threshold).
		Order("demandes.created_at ASC").
		Find(&demandes).Error
	return demandes, err
}

func (s *Store) Finalisees(limit, offset int) ([]*demande.Demande, error) {
	var demandes []*demande.Demande
	err := s.db.Where("statut IN ?", []string{demande.StatutValidee, demande.StatutRefusee}).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&demandes).Error
	return demandes, err
}

func (s *Store) ByUser(userID int64, limit, offset int) ([]*demande.Demande, error) {
	var demandes []*demande.Demande
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&demandes).Error
	return demandes, err
}
