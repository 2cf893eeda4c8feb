package demande

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	apperrors "github.com/sigefi/budget-approval/internal"
	"github.com/sigefi/budget-approval/internal/auth"
	"github.com/sigefi/budget-approval/internal/budget"
	"github.com/sigefi/budget-approval/internal/journal"
	"github.com/sigefi/budget-approval/internal/transport"
)

type ServiceAPI interface {
	CreateDemande(user *auth.User, dto CreateDemandeDTO) (*Demande, error)
	Valider(demandeID int64, user *auth.User, dto DecisionDTO) (string, error)
	Refuser(demandeID int64, user *auth.User, dto DecisionDTO) error
	GetByID(demandeID int64, user *auth.User) (*Demande, error)
	AValider(user *auth.User) ([]*Demande, error)
	Finalisees(limit, offset int) ([]*Demande, error)
	ByUser(userID int64, limit, offset int) ([]*Demande, error)
	DAFAValider(user *auth.User) ([]*Demande, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(nil),
		Service:     service,
	}
}

func (h *Handler) CreateDemande(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeInvalidToken))
		return
	}

	var dto CreateDemandeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateDemande: invalid request body", "error", err)
		h.HandleError(w, apperrors.NewValidationError("invalid request body", apperrors.ErrCodeValidationFailed))
		return
	}

	if err := dto.Validate(); err != nil {
		h.Logger.Warn("CreateDemande: validation error", "error", err, "user_id", user.ID)
		h.HandleError(w, apperrors.NewValidationError(err.Error(), apperrors.ErrCodeValidationFailed))
		return
	}

	d, err := h.Service.CreateDemande(user, dto)
	if err != nil {
		h.Logger.Error("CreateDemande: service error", "error", err, "user_id", user.ID)
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) GetDemande(w http.ResponseWriter, r *http.Request) {
	user, demandeID, ok := h.userAndID(w, r)
	if !ok {
		return
	}

	d, err := h.Service.GetByID(demandeID, user)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) Valider(w http.ResponseWriter, r *http.Request) {
	user, demandeID, ok := h.userAndID(w, r)
	if !ok {
		return
	}

	// Both decision fields are optional, so an empty body is a valid input.
	var dto DecisionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil && err != io.EOF {
		h.HandleError(w, apperrors.NewValidationError("invalid request body", apperrors.ErrCodeValidationFailed))
		return
	}

	outcome, err := h.Service.Valider(demandeID, user, dto)
	if err != nil {
		h.Logger.Error("Valider: service error", "error", err, "demande_id", demandeID, "user_id", user.ID)
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"statut": outcome})
}

func (h *Handler) Refuser(w http.ResponseWriter, r *http.Request) {
	user, demandeID, ok := h.userAndID(w, r)
	if !ok {
		return
	}

	var dto DecisionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil && err != io.EOF {
		h.HandleError(w, apperrors.NewValidationError("invalid request body", apperrors.ErrCodeValidationFailed))
		return
	}

	if err := dto.ValidateForReject(); err != nil {
		h.HandleError(w, apperrors.NewValidationError(err.Error(), apperrors.ErrCodeValidationFailed))
		return
	}

	if err := h.Service.Refuser(demandeID, user, dto); err != nil {
		h.Logger.Error("Refuser: service error", "error", err, "demande_id", demandeID, "user_id", user.ID)
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"statut": StatutRefusee})
}

func (h *Handler) MesDemandes(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeInvalidToken))
		return
	}

	limit, offset := pagination(r)
	demandes, err := h.Service.ByUser(user.ID, limit, offset)
	if err != nil {
		h.HandleError(w, apperrors.NewInternalError("failed to list demandes", err))
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"demandes": demandes,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handler) AValider(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeInvalidToken))
		return
	}

	demandes, err := h.Service.AValider(user)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"demandes": demandes})
}

func (h *Handler) Finalisees(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	demandes, err := h.Service.Finalisees(limit, offset)
	if err != nil {
		h.HandleError(w, apperrors.NewInternalError("failed to list demandes", err))
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"demandes": demandes,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handler) DAFAValider(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeInvalidToken))
		return
	}

	demandes, err := h.Service.DAFAValider(user)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"demandes": demandes})
}

func (h *Handler) userAndID(w http.ResponseWriter, r *http.Request) (*auth.User, int64, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeInvalidToken))
		return nil, 0, false
	}

	idStr := chi.URLParam(r, "id")
	demandeID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.HandleError(w, apperrors.NewValidationError("invalid demande ID", apperrors.ErrCodeValidationFailed))
		return nil, 0, false
	}

	return user, demandeID, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDemandeNotFound):
		h.HandleError(w, apperrors.NewNotFoundError("demande not found", apperrors.ErrCodeDemandeNotFound))
	case errors.Is(err, ErrNotCurrentValidator):
		h.HandleError(w, apperrors.NewForbiddenError(err.Error(), apperrors.ErrCodeNotCurrentValidator))
	case errors.Is(err, ErrRoleCannotApprove):
		h.HandleError(w, apperrors.NewForbiddenError(err.Error(), apperrors.ErrCodeRoleCannotApprove))
	case errors.Is(err, ErrUnauthorizedAccess):
		h.HandleError(w, apperrors.NewForbiddenError(err.Error(), apperrors.ErrCodeUnauthorizedAccess))
	case errors.Is(err, ErrDemandeTerminal):
		h.HandleError(w, apperrors.NewConflictError("demande already finalized", apperrors.ErrCodeDemandeTerminal))
	case errors.Is(err, ErrNoValidatorAvailable):
		h.HandleError(w, apperrors.NewValidationError(err.Error(), apperrors.ErrCodeNoValidator))
	case errors.Is(err, ErrMontantMismatch):
		h.HandleError(w, apperrors.NewValidationError(err.Error(), apperrors.ErrCodeInvalidAmount))
	case errors.Is(err, ErrInvalidSignature):
		h.HandleError(w, apperrors.NewValidationError(err.Error(), apperrors.ErrCodeInvalidSignature))
	case errors.Is(err, journal.ErrJournalNotFound):
		h.HandleError(w, apperrors.NewValidationError("journal not found", apperrors.ErrCodeJournalNotFound))
	case errors.Is(err, budget.ErrBudgetNotFound):
		h.HandleError(w, apperrors.NewValidationError("budget not found", apperrors.ErrCodeBudgetNotFound))
	default:
		h.HandleError(w, err)
	}
}

func pagination(r *http.Request) (int, int) {
	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}
