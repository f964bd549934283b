package contest

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/auth"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/httpx"
	person "github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger, now: time.Now}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := auth.Require(r.Context(), person.RoleManager)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req CreateInput
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	c, err := h.svc.Create(r.Context(), p.PersonID, req)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, c)
}

// List returns the caller's contests: a manager sees its own, a coach sees
// the active ones of its nearest manager.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, err := auth.Require(r.Context(), person.RoleManager, person.RoleCoach)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var out any
	if p.Role == person.RoleManager {
		out, err = h.svc.ListForManager(r.Context(), p.PersonID)
	} else {
		out, err = h.svc.ListForCoach(r.Context(), p.PersonID, h.now())
	}
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// viewer returns the caller, or writes 403 when there is none.
func (h *Handler) viewer(w http.ResponseWriter, r *http.Request) (Viewer, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrForbidden)
		return Viewer{}, false
	}
	return Viewer{ID: p.PersonID, Role: p.Role, Admin: p.Admin}, true
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	c, err := h.svc.GetFor(r.Context(), v, r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"contest": c,
		"status":  c.Status(h.now()),
	})
}

type EnrollRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
	Proof
}

// Enroll is called by the coach owning the customer.
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	p, err := auth.Require(r.Context(), person.RoleCoach)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req EnrollRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	part, err := h.svc.EnrollByCoach(r.Context(), p.PersonID, r.PathValue("id"), req.CustomerID, req.Proof)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, part)
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.LeaderboardFor(r.Context(), v, r.PathValue("id"), h.now())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}
