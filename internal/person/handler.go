package person

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/auth"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
)

// Handler exposes HTTP endpoints for signup, the hierarchy views and the
// customer book of a coach.
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

func (h *Handler) SignupCoach(w http.ResponseWriter, r *http.Request) {
	var req SignupCoachInput
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	res, err := h.svc.SignupCoach(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) SignupManager(w http.ResponseWriter, r *http.Request) {
	var req SignupManagerInput
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	res, err := h.svc.SignupManager(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrForbidden)
		return
	}
	me, err := h.svc.Get(r.Context(), p.PersonID)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, me)
}

// selfOrAdmin returns the {id} path value when the caller is that person or
// an operator.
func (h *Handler) selfOrAdmin(r *http.Request) (string, error) {
	id := r.PathValue("id")
	p, ok := auth.FromContext(r.Context())
	if !ok || (!p.Admin && p.PersonID != id) {
		return "", apperr.ErrForbidden
	}
	return id, nil
}

func (h *Handler) Chain(w http.ResponseWriter, r *http.Request) {
	id, err := h.selfOrAdmin(r)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	chain, err := h.svc.Chain(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if chain == nil {
		chain = []entity.Person{}
	}
	httpx.WriteJSON(w, http.StatusOK, chain)
}

func (h *Handler) Downlines(w http.ResponseWriter, r *http.Request) {
	id, err := h.selfOrAdmin(r)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	list, err := h.svc.Downlines(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []entity.Person{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

type RepairUplineRequest struct {
	UplineID string `json:"upline_id" validate:"required"`
}

func (h *Handler) RepairUpline(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireAdmin(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req RepairUplineRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	p, err := h.svc.RepairUpline(r.Context(), r.PathValue("id"), req.UplineID)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Restitch(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireAdmin(r.Context()); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	report, err := h.svc.Restitch(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

// coach returns the calling coach's id.
func (h *Handler) coach(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, err := auth.Require(r.Context(), entity.RoleCoach)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return "", false
	}
	return p.PersonID, true
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	coachID, ok := h.coach(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListCustomers(r.Context(), coachID)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	coachID, ok := h.coach(w, r)
	if !ok {
		return
	}
	var req CustomerInput
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	c, err := h.svc.CreateCustomer(r.Context(), coachID, req)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	coachID, ok := h.coach(w, r)
	if !ok {
		return
	}
	c, err := h.svc.GetCustomer(r.Context(), coachID, r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	coachID, ok := h.coach(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteCustomer(r.Context(), coachID, r.PathValue("id")); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AttendanceRequest struct {
	At time.Time `json:"at"`
}

func (h *Handler) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	coachID, ok := h.coach(w, r)
	if !ok {
		return
	}
	var req AttendanceRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if err := h.svc.RecordAttendance(r.Context(), coachID, r.PathValue("id"), req.At); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type PaymentRequest struct {
	Amount float64   `json:"amount" validate:"gt=0"`
	PaidAt time.Time `json:"paid_at"`
	Method string    `json:"method" validate:"max=32"`
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	coachID, ok := h.coach(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	p := entity.Payment{Amount: req.Amount, PaidAt: req.PaidAt, Method: req.Method}
	if err := h.svc.RecordPayment(r.Context(), coachID, r.PathValue("id"), p); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateComposition(w http.ResponseWriter, r *http.Request) {
	coachID, ok := h.coach(w, r)
	if !ok {
		return
	}
	var req entity.Composition
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	c, err := h.svc.UpdateComposition(r.Context(), coachID, r.PathValue("id"), req)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	coachID, ok := h.coach(w, r)
	if !ok {
		return
	}
	var req StatusInput
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	c, err := h.svc.UpdateStatus(r.Context(), coachID, r.PathValue("id"), req)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

type FollowUpRequest struct {
	Day  int  `json:"day" validate:"min=1,max=3"`
	Done bool `json:"done"`
}

func (h *Handler) SetFollowUp(w http.ResponseWriter, r *http.Request) {
	coachID, ok := h.coach(w, r)
	if !ok {
		return
	}
	var req FollowUpRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	c, err := h.svc.SetFollowUp(r.Context(), coachID, r.PathValue("id"), req.Day, req.Done)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}
