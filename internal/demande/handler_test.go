package demande_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/sigefi/budget-approval/internal/auth"
	"github.com/sigefi/budget-approval/internal/demande"
)

type stubService struct {
	createFn  func(user *auth.User, dto demande.CreateDemandeDTO) (*demande.Demande, error)
	validerFn func(demandeID int64, user *auth.User, dto demande.DecisionDTO) (string, error)
	refuserFn func(demandeID int64, user *auth.User, dto demande.DecisionDTO) error
	getFn     func(demandeID int64, user *auth.User) (*demande.Demande, error)
}

func (s *stubService) CreateDemande(user *auth.User, dto demande.CreateDemandeDTO) (*demande.Demande, error) {
	return s.createFn(user, dto)
}

func (s *stubService) Valider(demandeID int64, user *auth.User, dto demande.DecisionDTO) (string, error) {
	return s.validerFn(demandeID, user, dto)
}

func (s *stubService) Refuser(demandeID int64, user *auth.User, dto demande.DecisionDTO) error {
	return s.refuserFn(demandeID, user, dto)
}

func (s *stubService) GetByID(demandeID int64, user *auth.User) (*demande.Demande, error) {
	return s.getFn(demandeID, user)
}

func (s *stubService) AValider(user *auth.User) ([]*demande.Demande, error) {
	return nil, nil
}

func (s *stubService) Finalisees(limit, offset int) ([]*demande.Demande, error) {
	return nil, nil
}

func (s *stubService) ByUser(userID int64, limit, offset int) ([]*demande.Demande, error) {
	return nil, nil
}

func (s *stubService) DAFAValider(user *auth.User) ([]*demande.Demande, error) {
	return nil, nil
}

var _ = Describe("Handler", func() {
	var (
		service *stubService
		handler *demande.Handler
		router  chi.Router
		user    *auth.User
	)

	withUser := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), auth.ContextUserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	}

	BeforeEach(func() {
		service = &stubService{}
		handler = demande.NewHandler(service)
		user = &auth.User{ID: 2, Email: "rh@sigefi.local", Role: auth.RoleRH, IsActive: true}

		router = chi.NewRouter()
		router.Post("/demandes", withUser(handler.CreateDemande))
		router.Get("/demandes/{id}", withUser(handler.GetDemande))
		router.Put("/demandes/{id}/valider", withUser(handler.Valider))
		router.Put("/demandes/{id}/refuser", withUser(handler.Refuser))
	})

	Describe("CreateDemande", func() {
		It("returns 201 with the created demande", func() {
			service.createFn = func(u *auth.User, dto demande.CreateDemandeDTO) (*demande.Demande, error) {
				d := &demande.Demande{ID: 7, UserID: u.ID, Type: dto.Type, MontantTotal: dto.MontantTotal}
				return d, nil
			}

			body := `{
				"type": "DED",
				"journal_id": 10,
				"date": "2026-03-10T00:00:00Z",
				"montant_total": "300",
				"details": [
					{"nature": "achat", "libelle": "papier", "montant": "100"},
					{"nature": "depense", "libelle": "transport", "montant": "200"}
				]
			}`
			req := httptest.NewRequest(http.MethodPost, "/demandes", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			var got demande.Demande
			Expect(json.Unmarshal(rec.Body.Bytes(), &got)).To(Succeed())
			Expect(got.ID).To(Equal(int64(7)))
			Expect(got.MontantTotal.Equal(decimal.NewFromInt(300))).To(BeTrue())
		})

		It("returns 400 on malformed JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/demandes", bytes.NewBufferString("{"))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 when the payload fails validation", func() {
			body := `{"type": "DED", "date": "2026-03-10T00:00:00Z", "montant_total": "0", "details": []}`
			req := httptest.NewRequest(http.MethodPost, "/demandes", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 when the total does not match the lines", func() {
			body := `{
				"type": "DED",
				"date": "2026-03-10T00:00:00Z",
				"montant_total": "999",
				"details": [{"nature": "achat", "libelle": "papier", "montant": "100"}]
			}`
			req := httptest.NewRequest(http.MethodPost, "/demandes", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Valider", func() {
		It("returns the workflow outcome", func() {
			service.validerFn = func(id int64, u *auth.User, dto demande.DecisionDTO) (string, error) {
				Expect(id).To(Equal(int64(7)))
				return demande.OutcomeApproved, nil
			}

			req := httptest.NewRequest(http.MethodPut, "/demandes/7/valider", bytes.NewBufferString(`{}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(demande.OutcomeApproved))
		})

		It("accepts an empty request body", func() {
			service.validerFn = func(id int64, u *auth.User, dto demande.DecisionDTO) (string, error) {
				Expect(dto.Commentaire).To(BeEmpty())
				Expect(dto.SignatureBase64).To(BeEmpty())
				return demande.OutcomeTierCleared, nil
			}

			req := httptest.NewRequest(http.MethodPut, "/demandes/7/valider", http.NoBody)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(demande.OutcomeTierCleared))
		})

		It("still rejects a malformed body", func() {
			req := httptest.NewRequest(http.MethodPut, "/demandes/7/valider", bytes.NewBufferString(`{"commentaire":`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps the turn violation to 403", func() {
			service.validerFn = func(int64, *auth.User, demande.DecisionDTO) (string, error) {
				return "", demande.ErrNotCurrentValidator
			}

			req := httptest.NewRequest(http.MethodPut, "/demandes/7/valider", bytes.NewBufferString(`{}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("maps a terminal demande to 409", func() {
			service.validerFn = func(int64, *auth.User, demande.DecisionDTO) (string, error) {
				return "", demande.ErrDemandeTerminal
			}

			req := httptest.NewRequest(http.MethodPut, "/demandes/7/valider", bytes.NewBufferString(`{}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusConflict))
		})

		It("maps a missing demande to 404", func() {
			service.validerFn = func(int64, *auth.User, demande.DecisionDTO) (string, error) {
				return "", demande.ErrDemandeNotFound
			}

			req := httptest.NewRequest(http.MethodPut, "/demandes/7/valider", bytes.NewBufferString(`{}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("rejects a non-numeric id", func() {
			req := httptest.NewRequest(http.MethodPut, "/demandes/abc/valider", bytes.NewBufferString(`{}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Refuser", func() {
		It("requires a commentaire", func() {
			req := httptest.NewRequest(http.MethodPut, "/demandes/7/refuser", bytes.NewBufferString(`{}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns the rejected status", func() {
			service.refuserFn = func(id int64, u *auth.User, dto demande.DecisionDTO) error {
				Expect(dto.Commentaire).To(Equal("pièces manquantes"))
				return nil
			}

			req := httptest.NewRequest(http.MethodPut, "/demandes/7/refuser",
				bytes.NewBufferString(`{"commentaire": "pièces manquantes"}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(demande.StatutRefusee))
		})
	})

	Describe("GetDemande", func() {
		It("maps unauthorized access to 403", func() {
			service.getFn = func(int64, *auth.User) (*demande.Demande, error) {
				return nil, demande.ErrUnauthorizedAccess
			}

			req := httptest.NewRequest(http.MethodGet, "/demandes/7", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})
	})
})
