package stats

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/auth"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person/entity"
)

// Handler serves the coach dashboard numbers.
type Handler struct {
	engine *Engine
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewHandler(engine *Engine, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{engine: engine, logger: logger, now: time.Now}
}

// Mine returns the stats of the calling coach.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	p, err := auth.Require(r.Context(), entity.RoleCoach)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	s, err := h.engine.ComputeStats(r.Context(), p.PersonID, h.now())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}
