package demande_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/sigefi/budget-approval/internal/demande"
)

var _ = Describe("CreateDemandeDTO", func() {
	valid := func() demande.CreateDemandeDTO {
		return demande.CreateDemandeDTO{
			Type:         demande.TypeDepense,
			DateDemande:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			MontantTotal: decimal.NewFromInt(300),
			Details: []demande.CreateDetailDTO{
				{Nature: demande.NatureAchat, Libelle: "papier", Montant: decimal.NewFromInt(100)},
				{Nature: demande.NatureDepense, Libelle: "transport", Montant: decimal.NewFromInt(200)},
			},
		}
	}

	It("accepts a well-formed payload", func() {
		Expect(valid().Validate()).To(Succeed())
	})

	It("rejects an unknown type", func() {
		dto := valid()
		dto.Type = "Facture"
		Expect(dto.Validate()).To(HaveOccurred())
	})

	It("requires a date", func() {
		dto := valid()
		dto.DateDemande = time.Time{}
		Expect(dto.Validate()).To(HaveOccurred())
	})

	It("requires at least one detail line", func() {
		dto := valid()
		dto.Details = nil
		Expect(dto.Validate()).To(HaveOccurred())
	})

	It("rejects an unknown justificatif status", func() {
		dto := valid()
		dto.Justificatif = "maybe"
		Expect(dto.Validate()).To(HaveOccurred())
	})

	It("accepts the known justificatif statuses", func() {
		dto := valid()
		dto.Justificatif = demande.JustificatifFourni
		Expect(dto.Validate()).To(Succeed())
		dto.Justificatif = demande.JustificatifPasEncore
		Expect(dto.Validate()).To(Succeed())
	})

	It("rejects a detail without libelle", func() {
		dto := valid()
		dto.Details[0].Libelle = ""
		Expect(dto.Validate()).To(HaveOccurred())
	})

	It("rejects a non-positive montant", func() {
		dto := valid()
		dto.Details[0].Montant = decimal.Zero
		dto.MontantTotal = dto.SignedTotal()
		Expect(dto.Validate()).To(HaveOccurred())
	})

	It("rejects a mismatched montant_total", func() {
		dto := valid()
		dto.MontantTotal = decimal.NewFromInt(299)
		Expect(dto.Validate()).To(MatchError(demande.ErrMontantMismatch))
	})

	It("checks the total against the correction sign convention", func() {
		dto := valid()
		dto.Type = demande.TypeCorrection
		// 100 - 200 under the correction convention, not 300.
		Expect(dto.Validate()).To(MatchError(demande.ErrMontantMismatch))

		dto.MontantTotal = decimal.NewFromInt(-100)
		Expect(dto.Validate()).To(Succeed())
	})
})

var _ = Describe("SignedTotal", func() {
	amounts := func(values ...int64) []decimal.Decimal {
		out := make([]decimal.Decimal, len(values))
		for i, v := range values {
			out[i] = decimal.NewFromInt(v)
		}
		return out
	}

	It("sums plainly for expenses and income", func() {
		Expect(demande.SignedTotal(demande.TypeDepense, amounts(100, 200))).To(Equal(decimal.NewFromInt(300)))
		Expect(demande.SignedTotal(demande.TypeRecette, amounts(100, 200))).To(Equal(decimal.NewFromInt(300)))
	})

	It("credits the first line and debits the rest for corrections", func() {
		Expect(demande.SignedTotal(demande.TypeCorrection, amounts(500, 120, 80))).To(Equal(decimal.NewFromInt(300)))
	})

	It("is zero for no lines", func() {
		Expect(demande.SignedTotal(demande.TypeDepense, nil)).To(Equal(decimal.Zero))
	})
})

var _ = Describe("BalanceDelta", func() {
	It("draws down for expenses", func() {
		Expect(demande.BalanceDelta(demande.TypeDepense, decimal.NewFromInt(200))).To(Equal(decimal.NewFromInt(-200)))
	})

	It("credits income and corrections", func() {
		Expect(demande.BalanceDelta(demande.TypeRecette, decimal.NewFromInt(200))).To(Equal(decimal.NewFromInt(200)))
		Expect(demande.BalanceDelta(demande.TypeCorrection, decimal.NewFromInt(300))).To(Equal(decimal.NewFromInt(300)))
	})
})

var _ = Describe("SignatureStore", func() {
	var (
		dir   string
		store *demande.SignatureStore
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "sigstore")
		Expect(err).NotTo(HaveOccurred())
		store = demande.NewSignatureStore(dir, "http://localhost:8080/uploads/signatures/")
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("stores the decoded payload under a content-addressed name", func() {
		payload := base64.StdEncoding.EncodeToString([]byte("signature-bytes"))
		url, err := store.Save(payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(url).To(HavePrefix("http://localhost:8080/uploads/signatures/"))

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(url).To(HaveSuffix(entries[0].Name()))

		content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
		Expect(err).NotTo(HaveOccurred())
		Expect(content).To(Equal([]byte("signature-bytes")))
	})

	It("strips a data URI prefix", func() {
		payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes"))
		_, err := store.Save(payload)
		Expect(err).NotTo(HaveOccurred())
	})

	It("is idempotent for identical payloads", func() {
		payload := base64.StdEncoding.EncodeToString([]byte("same"))
		first, err := store.Save(payload)
		Expect(err).NotTo(HaveOccurred())
		second, err := store.Save(payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
	})

	It("rejects payloads that are not base64", func() {
		_, err := store.Save("définitivement pas du base64")
		Expect(err).To(MatchError(demande.ErrInvalidSignature))
	})
})
