package journal

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	apperrors "github.com/sigefi/budget-approval/internal"
	"github.com/sigefi/budget-approval/internal/auth"
	"github.com/sigefi/budget-approval/internal/transport"
)

type ServiceAPI interface {
	Valider(journalID, userID int64, commentaire string) (string, error)
	Refuser(journalID, userID int64, commentaire string) error
	AValider(userID int64) ([]*Journal, error)
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

type decisionBody struct {
	Commentaire string `json:"commentaire"`
}

func (h *Handler) Valider(w http.ResponseWriter, r *http.Request) {
	user, journalID, body, ok := h.decisionInput(w, r)
	if !ok {
		return
	}

	outcome, err := h.Service.Valider(journalID, user.ID, body.Commentaire)
	if err != nil {
		h.writeDecisionError(w, err, journalID, user.ID)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"statut": outcome})
}

func (h *Handler) Refuser(w http.ResponseWriter, r *http.Request) {
	user, journalID, body, ok := h.decisionInput(w, r)
	if !ok {
		return
	}

	if body.Commentaire == "" {
		h.HandleError(w, apperrors.NewValidationError("commentaire is required", apperrors.ErrCodeValidationFailed))
		return
	}

	if err := h.Service.Refuser(journalID, user.ID, body.Commentaire); err != nil {
		h.writeDecisionError(w, err, journalID, user.ID)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"statut": StatutRefuse})
}

func (h *Handler) AValider(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeInvalidToken))
		return
	}

	journaux, err := h.Service.AValider(user.ID)
	if err != nil {
		h.HandleError(w, apperrors.NewInternalError("failed to list journals", err))
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"journaux": journaux})
}

func (h *Handler) decisionInput(w http.ResponseWriter, r *http.Request) (*auth.User, int64, decisionBody, bool) {
	var body decisionBody

	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeInvalidToken))
		return nil, 0, body, false
	}

	idStr := chi.URLParam(r, "id")
	journalID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.HandleError(w, apperrors.NewValidationError("invalid journal ID", apperrors.ErrCodeValidationFailed))
		return nil, 0, body, false
	}

	// commentaire is optional on approval, so an empty body is valid input
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		h.HandleError(w, apperrors.NewValidationError("invalid request body", apperrors.ErrCodeValidationFailed))
		return nil, 0, body, false
	}

	return user, journalID, body, true
}

func (h *Handler) writeDecisionError(w http.ResponseWriter, err error, journalID, userID int64) {
	h.Logger.Error("journal decision failed", "error", err, "journal_id", journalID, "user_id", userID)

	switch {
	case errors.Is(err, ErrJournalNotFound):
		h.HandleError(w, apperrors.NewNotFoundError("journal not found", apperrors.ErrCodeJournalNotFound))
	case errors.Is(err, ErrNotCurrentValidator):
		h.HandleError(w, apperrors.NewForbiddenError("not the current validator for this journal", apperrors.ErrCodeNotCurrentValidator))
	case errors.Is(err, ErrJournalFinalized):
		h.HandleError(w, apperrors.NewConflictError("journal validation already finalized", apperrors.ErrCodeJournalFinalized))
	default:
		h.HandleError(w, err)
	}
}
