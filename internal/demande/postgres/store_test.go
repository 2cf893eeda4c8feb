package postgres

import (
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sigefi/budget-approval/internal/auth"
	"github.com/sigefi/budget-approval/internal/demande"
	"github.com/sigefi/budget-approval/internal/journal"
)

func TestDemandeStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Demande Store Suite")
}

var _ = Describe("Store", func() {
	var (
		db    *gorm.DB
		store demande.Repository
	)

	newDemande := func(userID int64, journalID *int64, total string) *demande.Demande {
		return &demande.Demande{
			UserID:       userID,
			Type:         demande.TypeDepense,
			JournalID:    journalID,
			DateDemande:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			Justificatif: demande.JustificatifPasEncore,
			MontantTotal: decimal.RequireFromString(total),
			Statut:       demande.StatutEnAttente,
		}
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(
			&auth.User{},
			&journal.Journal{},
			&journal.Validator{},
			&demande.Demande{},
			&demande.Detail{},
			&demande.Validation{},
		)
		Expect(err).NotTo(HaveOccurred())

		store = NewStore(db)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("CreateDemande", func() {
		It("cascades details and validations in one insert", func() {
			d := newDemande(1, nil, "300")
			d.Details = []*demande.Detail{
				{Nature: demande.NatureAchat, Libelle: "papier", Montant: decimal.NewFromInt(100), Statut: demande.StatutEnAttente},
				{Nature: demande.NatureDepense, Libelle: "transport", Montant: decimal.NewFromInt(200), Statut: demande.StatutEnAttente},
			}
			d.Validations = []*demande.Validation{
				{UserID: 2, Rang: 1, Statut: demande.ValidationEnAttente},
				{UserID: 4, Rang: 2, Statut: demande.ValidationInitiale},
			}

			Expect(store.CreateDemande(d)).To(Succeed())
			Expect(d.ID).NotTo(BeZero())

			got, err := store.GetByID(d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Details).To(HaveLen(2))
			Expect(got.Validations).To(HaveLen(2))
			Expect(got.Validations[0].DemandeID).To(Equal(d.ID))
		})
	})

	Describe("GetByID", func() {
		It("orders validations by rank then id", func() {
			d := newDemande(1, nil, "100")
			d.Validations = []*demande.Validation{
				{UserID: 4, Rang: 2, Statut: demande.ValidationInitiale},
				{UserID: 2, Rang: 1, Statut: demande.ValidationEnAttente},
				{UserID: 3, Rang: 1, Statut: demande.ValidationEnAttente},
			}
			Expect(store.CreateDemande(d)).To(Succeed())

			got, err := store.GetByID(d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Validations[0].Rang).To(Equal(1))
			Expect(got.Validations[1].Rang).To(Equal(1))
			Expect(got.Validations[2].Rang).To(Equal(2))
		})

		It("maps a missing row to the domain error", func() {
			_, err := store.GetByID(404)
			Expect(err).To(MatchError(demande.ErrDemandeNotFound))
		})
	})

	Describe("ClaimValidation", func() {
		var step *demande.Validation

		BeforeEach(func() {
			d := newDemande(1, nil, "100")
			d.Validations = []*demande.Validation{
				{UserID: 2, Rang: 1, Statut: demande.ValidationEnAttente},
			}
			Expect(store.CreateDemande(d)).To(Succeed())
			step = d.Validations[0]
		})

		It("claims a pending step exactly once", func() {
			claimed, err := store.ClaimValidation(step.ID, demande.ValidationApprouvee, "ok", nil, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(BeTrue())

			claimed, err = store.ClaimValidation(step.ID, demande.ValidationRefusee, "non", nil, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(BeFalse())

			var got demande.Validation
			Expect(db.First(&got, step.ID).Error).To(Succeed())
			Expect(got.Statut).To(Equal(demande.ValidationApprouvee))
			Expect(got.Commentaire).To(Equal("ok"))
			Expect(got.DecidedAt).NotTo(BeNil())
		})

		It("records the signature URL when given", func() {
			url := "http://localhost:8080/uploads/signatures/abc.png"
			claimed, err := store.ClaimValidation(step.ID, demande.ValidationApprouvee, "", &url, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(BeTrue())

			var got demande.Validation
			Expect(db.First(&got, step.ID).Error).To(Succeed())
			Expect(got.SignatureURL).NotTo(BeNil())
			Expect(*got.SignatureURL).To(Equal(url))
		})
	})

	Describe("PromoteRank and CancelRanksAbove", func() {
		var d *demande.Demande

		BeforeEach(func() {
			d = newDemande(1, nil, "100")
			d.Validations = []*demande.Validation{
				{UserID: 2, Rang: 1, Statut: demande.ValidationApprouvee},
				{UserID: 3, Rang: 2, Statut: demande.ValidationInitiale},
				{UserID: 4, Rang: 3, Statut: demande.ValidationInitiale},
			}
			Expect(store.CreateDemande(d)).To(Succeed())
		})

		It("opens only the promoted rank", func() {
			Expect(store.PromoteRank(d.ID, 2)).To(Succeed())

			steps, err := store.ValidationsForDemande(d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(steps[1].Statut).To(Equal(demande.ValidationEnAttente))
			Expect(steps[2].Statut).To(Equal(demande.ValidationInitiale))
		})

		It("cancels initial and pending steps above the rank", func() {
			Expect(store.PromoteRank(d.ID, 2)).To(Succeed())
			Expect(store.CancelRanksAbove(d.ID, 1)).To(Succeed())

			steps, err := store.ValidationsForDemande(d.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(steps[0].Statut).To(Equal(demande.ValidationApprouvee))
			Expect(steps[1].Statut).To(Equal(demande.ValidationAnnulee))
			Expect(steps[2].Statut).To(Equal(demande.ValidationAnnulee))
		})

		It("counts pending steps at a rank", func() {
			n, err := store.PendingAtRank(d.ID, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			Expect(store.PromoteRank(d.ID, 2)).To(Succeed())
			n, err = store.PendingAtRank(d.ID, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))
		})
	})

	Describe("Transaction", func() {
		It("rolls everything back when the callback fails", func() {
			boom := errors.New("boom")
			err := store.Transaction(func(tx demande.Repository) error {
				d := newDemande(1, nil, "100")
				d.Validations = []*demande.Validation{
					{UserID: 2, Rang: 1, Statut: demande.ValidationEnAttente},
				}
				if err := tx.CreateDemande(d); err != nil {
					return err
				}
				return boom
			})
			Expect(err).To(MatchError(boom))

			var count int64
			Expect(db.Model(&demande.Demande{}).Count(&count).Error).To(Succeed())
			Expect(count).To(BeZero())
			Expect(db.Model(&demande.Validation{}).Count(&count).Error).To(Succeed())
			Expect(count).To(BeZero())
		})

		It("applies a balance read-modify-write atomically", func() {
			jr := &journal.Journal{Nom: "Journal general", Solde: decimal.NewFromInt(1000), Statut: journal.StatutEnAttente}
			Expect(db.Create(jr).Error).To(Succeed())

			err := store.Transaction(func(tx demande.Repository) error {
				fresh, err := tx.GetJournal(jr.ID)
				if err != nil {
					return err
				}
				return tx.UpdateJournalSolde(jr.ID, fresh.Solde.Sub(decimal.NewFromInt(200)))
			})
			Expect(err).NotTo(HaveOccurred())

			got, err := store.GetJournal(jr.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Solde.Equal(decimal.NewFromInt(800))).To(BeTrue())
		})
	})

	Describe("AValider", func() {
		It("lists only demandes whose active rank holds the user", func() {
			waiting := newDemande(1, nil, "100")
			waiting.Validations = []*demande.Validation{
				{UserID: 2, Rang: 1, Statut: demande.ValidationEnAttente},
				{UserID: 4, Rang: 2, Statut: demande.ValidationInitiale},
			}
			Expect(store.CreateDemande(waiting)).To(Succeed())

			later := newDemande(1, nil, "100")
			later.Validations = []*demande.Validation{
				{UserID: 3, Rang: 1, Statut: demande.ValidationEnAttente},
				{UserID: 2, Rang: 2, Statut: demande.ValidationInitiale},
			}
			Expect(store.CreateDemande(later)).To(Succeed())

			queue, err := store.AValider(2)
			Expect(err).NotTo(HaveOccurred())
			Expect(queue).To(HaveLen(1))
			Expect(queue[0].ID).To(Equal(waiting.ID))

			queue, err = store.AValider(4)
			Expect(err).NotTo(HaveOccurred())
			Expect(queue).To(BeEmpty())
		})

		It("excludes terminal demandes", func() {
			d := newDemande(1, nil, "100")
			d.Validations = []*demande.Validation{
				{UserID: 2, Rang: 1, Statut: demande.ValidationEnAttente},
			}
			Expect(store.CreateDemande(d)).To(Succeed())
			Expect(store.UpdateStatut(d.ID, demande.StatutRefusee, nil, nil)).To(Succeed())

			queue, err := store.AValider(2)
			Expect(err).NotTo(HaveOccurred())
			Expect(queue).To(BeEmpty())
		})
	})

	Describe("DAFAValider", func() {
		It("keeps only the above-threshold queue", func() {
			small := newDemande(1, nil, "500")
			small.Validations = []*demande.Validation{
				{UserID: 4, Rang: 1, Statut: demande.ValidationEnAttente},
			}
			Expect(store.CreateDemande(small)).To(Succeed())

			big := newDemande(1, nil, "90000")
			big.Validations = []*demande.Validation{
				{UserID: 4, Rang: 1, Statut: demande.ValidationEnAttente},
			}
			Expect(store.CreateDemande(big)).To(Succeed())

			queue, err := store.DAFAValider(4, decimal.NewFromInt(70000))
			Expect(err).NotTo(HaveOccurred())
			Expect(queue).To(HaveLen(1))
			Expect(queue[0].ID).To(Equal(big.ID))
		})
	})

	Describe("Listings", func() {
		BeforeEach(func() {
			approvedAt := time.Now()
			solde := decimal.NewFromInt(800)
			done := newDemande(1, nil, "200")
			Expect(store.CreateDemande(done)).To(Succeed())
			Expect(store.UpdateStatut(done.ID, demande.StatutValidee, &approvedAt, &solde)).To(Succeed())

			open := newDemande(1, nil, "50")
			Expect(store.CreateDemande(open)).To(Succeed())

			other := newDemande(2, nil, "75")
			Expect(store.CreateDemande(other)).To(Succeed())
		})

		It("lists finalized demandes with the balance snapshot", func() {
			out, err := store.Finalisees(20, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0].Statut).To(Equal(demande.StatutValidee))
			Expect(out[0].SoldeApres).NotTo(BeNil())
		})

		It("lists a user's own demandes", func() {
			out, err := store.ByUser(1, 20, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(2))

			out, err = store.ByUser(1, 1, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
		})
	})

	Describe("Users", func() {
		BeforeEach(func() {
			users := []*auth.User{
				{Email: "agent@sigefi.local", Nom: "Agent", Role: auth.RoleEmploye, IsActive: true},
				{Email: "daf2@sigefi.local", Nom: "DAF Deux", Role: auth.RoleDAF, IsActive: true},
				{Email: "daf@sigefi.local", Nom: "DAF", Role: auth.RoleDAF, IsActive: true},
				{Email: "exdaf@sigefi.local", Nom: "Ancien DAF", Role: auth.RoleDAF, IsActive: false},
			}
			for _, u := range users {
				Expect(db.Create(u).Error).To(Succeed())
			}
		})

		It("returns the first active user with the role", func() {
			u, err := store.FirstUserWithRole(auth.RoleDAF, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Email).To(Equal("daf2@sigefi.local"))
		})

		It("skips the excluded user and falls through to the next holder", func() {
			first, err := store.FirstUserWithRole(auth.RoleDAF, 0)
			Expect(err).NotTo(HaveOccurred())

			u, err := store.FirstUserWithRole(auth.RoleDAF, first.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Email).To(Equal("daf@sigefi.local"))
		})

		It("maps a missing role to the domain error", func() {
			_, err := store.FirstUserWithRole(auth.RoleAdmin, 0)
			Expect(err).To(MatchError(auth.ErrUserNotFound))
		})

		It("resolves roles in bulk", func() {
			roles, err := store.RolesForUsers([]int64{1, 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(HaveLen(2))
			Expect(roles[2]).To(Equal(auth.RoleDAF))
		})
	})
})
