package resource

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/auth"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
)

// Handler contains dependencies for handling resource endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

// List returns the manager's own library, or for a coach the library of its
// nearest manager. ?category= narrows the result.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, err := auth.Require(r.Context(), entity.RoleManager, entity.RoleCoach)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	category := r.URL.Query().Get("category")
	var out any
	if p.Role == entity.RoleManager {
		out, err = h.svc.ListForManager(r.Context(), p.PersonID, category)
	} else {
		out, err = h.svc.ListForCoach(r.Context(), p.PersonID, category)
	}
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := auth.Require(r.Context(), entity.RoleManager)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req CreateInput
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	res, err := h.svc.Create(r.Context(), p.PersonID, req)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := auth.Require(r.Context(), entity.RoleManager)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), p.PersonID, r.PathValue("id")); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
