package postgres

import (
	"time"

	"github.com/sigefi/budget-approval/internal/journal"
	"gorm.io/gorm"
)

// JournalRepository implements journal.Repository using GORM.
type JournalRepository struct {
	db *gorm.DB
}

func NewJournalRepository(db *gorm.DB) journal.Repository {
	return &JournalRepository{db: db}
}

func (r *JournalRepository) Transaction(fn func(journal.Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&JournalRepository{db: tx})
	})
}

func (r *JournalRepository) GetByID(id int64) (*journal.Journal, error) {
	var jr journal.Journal
	err := r.db.Where("id = ?", id).First(&jr).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, journal.ErrJournalNotFound
		}
		return nil, err
	}
	return &jr, nil
}

func (r *JournalRepository) UpdateStatut(journalID int64, statut string) error {
	return r.db.Model(&journal.Journal{}).
		Where("id = ?", journalID).
		Updates(map[string]interface{}{
			"statut":     statut,
			"updated_at": time.Now(),
		}).Error
}

func (r *JournalRepository) ValidatorsForJournal(journalID int64) ([]*journal.Validator, error) {
	var validators []*journal.Validator
	err := r.db.Where("journal_id = ?", journalID).
		Order("rang ASC, id ASC").
		Find(&validators).Error
	return validators, err
}

// ClaimValidator conditionally finalizes a pending entry. Zero rows affected
// means someone else decided it first.
func (r *JournalRepository) ClaimValidator(id int64, statut, commentaire string, decidedAt time.Time) (bool, error) {
	res := r.db.Model(&journal.Validator{}).
		Where("id = ? AND statut = ?", id, journal.ValidateurEnAttente).
		Updates(map[string]interface{}{
			"statut":      statut,
			"commentaire": commentaire,
			"decided_at":  decidedAt,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// JournauxAValider lists pending journals whose lowest-rank pending validator
// is the given user.
func (r *JournalRepository) JournauxAValider(userID int64) ([]*journal.Journal, error) {
	var journaux []*journal.Journal
	err := r.db.
		Joins("JOIN journal_validateurs jv ON jv.journal_id = journaux.id").
		Where("journaux.statut = ?", journal.StatutEnAttente).
		Where("jv.user_id = ? AND jv.statut = ?", userID, journal.ValidateurEnAttente).
		Where(`jv.rang = (
			SELECT MIN(rang) FROM journal_validateurs
			WHERE journal_id = journaux.id AND statut = ?
		)`, journal.ValidateurEnAttente).
		Group("journaux.id").
		Find(&journaux).Error
	return journaux, err
}
