package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dojohq/crm-automation/internal/domain"
	"github.com/dojohq/crm-automation/internal/engine"
	"github.com/dojohq/crm-automation/internal/pkg/httputil"
	"github.com/dojohq/crm-automation/internal/repository/postgres"
	"github.com/dojohq/crm-automation/internal/service/sequence"
	"github.com/dojohq/crm-automation/internal/settings"
)

// Handlers holds the API's dependencies.
type Handlers struct {
	sequences   *sequence.Service
	engine      *engine.Engine
	scheduler   *engine.Scheduler
	enrollments *postgres.EnrollmentRepo
	settingsSvc *settings.Cache
	settingsDB  *postgres.SettingsRepo
}

// NewHandlers wires the API handlers. scheduler may be nil when the server
// runs without an embedded scheduler (worker deployed separately).
func NewHandlers(
	sequences *sequence.Service,
	eng *engine.Engine,
	scheduler *engine.Scheduler,
	enrollments *postgres.EnrollmentRepo,
	settingsCache *settings.Cache,
	settingsDB *postgres.SettingsRepo,
) *Handlers {
	return &Handlers{
		sequences:   sequences,
		engine:      eng,
		scheduler:   scheduler,
		enrollments: enrollments,
		settingsSvc: settingsCache,
		settingsDB:  settingsDB,
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// Trigger ingests a business event and enrolls the recipient into every
// matching active sequence.
func (h *Handlers) Trigger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TriggerType   string `json:"trigger_type"`
		RecipientType string `json:"recipient_type"`
		RecipientID   string `json:"recipient_id"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	rid, err := uuid.Parse(req.RecipientID)
	if err != nil {
		httputil.BadRequest(w, "invalid recipient_id")
		return
	}

	if err := h.engine.TriggerAutomation(r.Context(),
		domain.TriggerType(req.TriggerType), domain.RecipientType(req.RecipientType), rid); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Process runs one scheduler pass synchronously.
func (h *Handlers) Process(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.ProcessAutomations(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"processed": n})
}

// SchedulerStats reports the embedded scheduler's counters.
func (h *Handlers) SchedulerStats(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		httputil.NotFound(w, "no embedded scheduler")
		return
	}
	httputil.OK(w, h.scheduler.Stats())
}

// Sequences

func (h *Handlers) ListSequences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, total, err := h.sequences.List(r.Context(), sequence.ListFilter{
		TriggerType: q.Get("trigger_type"),
		ActiveOnly:  q.Get("active") == "true",
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"sequences": list, "total": total})
}

func (h *Handlers) CreateSequence(w http.ResponseWriter, r *http.Request) {
	var input sequence.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	seq, err := h.sequences.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, sequence.ErrInvalidTrigger) || errors.Is(err, sequence.ErrInvalidStep) {
			httputil.BadRequest(w, err.Error())
		} else {
			httputil.InternalError(w, err)
		}
		return
	}
	httputil.Created(w, seq)
}

func (h *Handlers) GetSequence(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "sequenceID")
	if !ok {
		return
	}
	seq, err := h.sequences.Get(r.Context(), id)
	if err != nil {
		h.sequenceError(w, err)
		return
	}
	httputil.OK(w, seq)
}

func (h *Handlers) UpdateSequence(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "sequenceID")
	if !ok {
		return
	}
	var u sequence.UpdateFields
	if !httputil.Decode(w, r, &u) {
		return
	}
	if err := h.sequences.Update(r.Context(), id, u); err != nil {
		h.sequenceError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) DeleteSequence(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "sequenceID")
	if !ok {
		return
	}
	if err := h.sequences.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sequence.ErrHasEnrollments) {
			httputil.Conflict(w, err.Error())
			return
		}
		h.sequenceError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) ActivateSequence(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handlers) DeactivateSequence(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handlers) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := pathUUID(w, r, "sequenceID")
	if !ok {
		return
	}
	if err := h.sequences.SetActive(r.Context(), id, active); err != nil {
		h.sequenceError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) ListSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "sequenceID")
	if !ok {
		return
	}
	steps, err := h.sequences.GetSteps(r.Context(), id)
	if err != nil {
		h.sequenceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"steps": steps})
}

func (h *Handlers) ReplaceSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "sequenceID")
	if !ok {
		return
	}
	var req struct {
		Steps []sequence.StepInput `json:"steps"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if err := h.sequences.ReplaceSteps(r.Context(), id, req.Steps); err != nil {
		if errors.Is(err, sequence.ErrInvalidStep) {
			httputil.BadRequest(w, err.Error())
			return
		}
		h.sequenceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// Enrollments

func (h *Handlers) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "enrollmentID")
	if !ok {
		return
	}
	enr, err := h.enrollments.Get(r.Context(), id)
	if err != nil {
		h.enrollmentError(w, err)
		return
	}
	httputil.OK(w, enr)
}

func (h *Handlers) EnrollmentLog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "enrollmentID")
	if !ok {
		return
	}
	log, err := h.enrollments.ListForEnrollment(r.Context(), id, 100)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"log": log})
}

func (h *Handlers) ListDeadLetter(w http.ResponseWriter, r *http.Request) {
	list, err := h.enrollments.ListByStatus(r.Context(), domain.EnrollmentDeadLetter, 100)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"enrollments": list})
}

func (h *Handlers) RequeueEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "enrollmentID")
	if !ok {
		return
	}
	if err := h.engine.RequeueDeadLetter(r.Context(), id); err != nil {
		if errors.Is(err, engine.ErrEnrollmentNotFound) {
			httputil.NotFound(w, "enrollment not found")
			return
		}
		httputil.Conflict(w, err.Error())
		return
	}
	httputil.NoContent(w)
}

// Settings

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settingsSvc.Get(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, s)
}

func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var s domain.BusinessSettings
	if !httputil.Decode(w, r, &s) {
		return
	}
	if err := h.settingsDB.UpdateBusinessSettings(r.Context(), s); err != nil {
		httputil.InternalError(w, err)
		return
	}
	if err := h.settingsSvc.Invalidate(r.Context()); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// helpers

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.BadRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) sequenceError(w http.ResponseWriter, err error) {
	if errors.Is(err, sequence.ErrNotFound) {
		httputil.NotFound(w, "sequence not found")
		return
	}
	httputil.InternalError(w, err)
}

func (h *Handlers) enrollmentError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrEnrollmentNotFound) {
		httputil.NotFound(w, "enrollment not found")
		return
	}
	httputil.InternalError(w, err)
}
