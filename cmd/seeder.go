package cmd

import (
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sigefi/budget-approval/internal/auth"
	"github.com/sigefi/budget-approval/internal/budget"
	"github.com/sigefi/budget-approval/internal/journal"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample users, a journal with its validator roster and budgets.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlxDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		db, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: sqlxDB.DB}), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to open orm handle: %v", err)
		}

		hash, err := auth.HashPassword("password", cfg.Security.BCryptCost)
		if err != nil {
			log.Fatalf("failed to hash seed password: %v", err)
		}

		users := []auth.User{
			{Email: "agent@sigefi.local", Nom: "Agent Comptable", Role: auth.RoleEmploye, PasswordHash: hash, IsActive: true},
			{Email: "rh@sigefi.local", Nom: "Responsable RH", Role: auth.RoleRH, PasswordHash: hash, IsActive: true},
			{Email: "rh2@sigefi.local", Nom: "Adjoint RH", Role: auth.RoleRH, PasswordHash: hash, IsActive: true},
			{Email: "daf@sigefi.local", Nom: "Directeur Financier", Role: auth.RoleDAF, PasswordHash: hash, IsActive: true},
		}
		for i := range users {
			u := &users[i]
			var existing auth.User
			if err := db.Where("email = ?", u.Email).First(&existing).Error; err == nil {
				users[i] = existing
				fmt.Println("user already exists:", u.Email)
				continue
			}
			if err := db.Create(u).Error; err != nil {
				log.Fatalf("failed to seed user %s: %v", u.Email, err)
			}
			fmt.Println("seeded user:", u.Email)
		}

		jr := journal.Journal{
			Nom:    "Journal general",
			Projet: "Fonctionnement",
			Solde:  decimal.RequireFromString("100000.00"),
			Statut: journal.StatutEnAttente,
		}
		var existingJournal journal.Journal
		if err := db.Where("nom = ?", jr.Nom).First(&existingJournal).Error; err == nil {
			jr = existingJournal
			fmt.Println("journal already exists:", jr.Nom)
		} else {
			if err := db.Create(&jr).Error; err != nil {
				log.Fatalf("failed to seed journal: %v", err)
			}
			roster := []journal.Validator{
				{JournalID: jr.ID, UserID: users[1].ID, Rang: 1, Statut: journal.ValidateurEnAttente},
				{JournalID: jr.ID, UserID: users[3].ID, Rang: 2, Statut: journal.ValidateurEnAttente},
			}
			for _, v := range roster {
				if err := db.Create(&v).Error; err != nil {
					log.Fatalf("failed to seed roster entry: %v", err)
				}
			}
			fmt.Println("seeded journal with validator roster:", jr.Nom)
		}

		b := budget.Budget{
			Code:      "FONC-2026",
			Libelle:   "Budget de fonctionnement",
			Annee:     2026,
			MontantT1: decimal.RequireFromString("25000.00"),
			MontantT2: decimal.RequireFromString("25000.00"),
			MontantT3: decimal.RequireFromString("25000.00"),
			MontantT4: decimal.RequireFromString("25000.00"),
			Restant:   decimal.RequireFromString("100000.00"),
		}
		var existingBudget budget.Budget
		if err := db.Where("code = ?", b.Code).First(&existingBudget).Error; err == nil {
			fmt.Println("budget already exists:", b.Code)
		} else {
			if err := db.Create(&b).Error; err != nil {
				log.Fatalf("failed to seed budget: %v", err)
			}
			fmt.Println("seeded budget:", b.Code)
		}
	},
}
