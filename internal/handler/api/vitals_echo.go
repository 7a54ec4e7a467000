package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	models "VitalWatch/internal/domain/models"
	domrepo "VitalWatch/internal/domain/repository"
	"VitalWatch/internal/usecase"
	xhttp "VitalWatch/pkg/http"
	xlogger "VitalWatch/pkg/logger"
	"VitalWatch/pkg/queue"
	xutil "VitalWatch/pkg/util"

	"github.com/labstack/echo/v4"
)

// AlertBoard is the shared recent-alerts view kept outside the process.
type AlertBoard interface {
	Recent(ctx context.Context, patientID, n int) ([]models.Alert, error)
	Remove(ctx context.Context, patientID int, condition string) (int, error)
	Clear(ctx context.Context) error
}

// queueDepth is implemented by job queues that can report their backlog.
type queueDepth interface {
	Len(ctx context.Context) (pending, retrying, dead int64, err error)
}

// VitalsHandler exposes the observation store and the alert engine over HTTP.
type VitalsHandler struct {
	logger *xlogger.Logger
	store  domrepo.ObservationStore
	proc   *usecase.ObservationProcessor
	engine *usecase.AlertEngine
	jobs   queue.Enqueuer
	board  AlertBoard
	now    func() time.Time
}

func NewVitalsHandler(logger *xlogger.Logger, store domrepo.ObservationStore, proc *usecase.ObservationProcessor, engine *usecase.AlertEngine) *VitalsHandler {
	return &VitalsHandler{logger: logger, store: store, proc: proc, engine: engine, now: time.Now}
}

// WithJobs enables deferred evaluation through POST /api/patients/:id/evaluate?async=true.
func (h *VitalsHandler) WithJobs(q queue.Enqueuer) *VitalsHandler {
	h.jobs = q
	return h
}

// WithBoard enables GET /api/alerts/recent and keeps the board in step with untrigger and reset.
func (h *VitalsHandler) WithBoard(b AlertBoard) *VitalsHandler {
	h.board = b
	return h
}

func (h *VitalsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/observations", h.AppendObservation)
	g.POST("/observations/batch", h.AppendBatch)
	g.GET("/patients", h.ListPatients)
	g.GET("/patients/:id", h.GetPatient)
	g.GET("/patients/:id/observations", h.QueryObservations)
	g.POST("/patients/:id/evaluate", h.Evaluate)
	g.GET("/alerts", h.ListAlerts)
	g.GET("/alerts/recent", h.RecentAlerts)
	g.POST("/alerts", h.TriggerAlert)
	g.DELETE("/alerts", h.UntriggerAlert)
	g.DELETE("/alerts/all", h.ResetAlerts)
}

func (h *VitalsHandler) Health(c echo.Context) error {
	body := map[string]interface{}{
		"status":   "ok",
		"patients": len(h.store.SubjectIDs()),
		"rules":    h.engine.Rules(),
	}
	if q, ok := h.jobs.(queueDepth); ok {
		pending, retrying, dead, err := q.Len(c.Request().Context())
		if err != nil {
			h.logger.Warn("queue depth unavailable", xlogger.Error(err))
			body["status"] = "degraded"
		} else {
			body["queue"] = map[string]int64{"pending": pending, "retrying": retrying, "dead": dead}
		}
	}
	return xhttp.SuccessResponse(c, body)
}

func (h *VitalsHandler) AppendObservation(c echo.Context) error {
	req := &models.AppendObservationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	o := h.toObservation(req)
	if err := h.proc.Process(c.Request().Context(), &o); err != nil {
		if errors.Is(err, models.ErrInvalidCategory) {
			return xhttp.AppErrorResponse(c, xhttp.InvalidCategoryError(req.Category).WithError(err))
		}
		h.logger.Error("append observation failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, o)
}

func (h *VitalsHandler) AppendBatch(c echo.Context) error {
	req := &models.AppendBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	obs := make([]models.Observation, 0, len(req.Observations))
	for i := range req.Observations {
		obs = append(obs, h.toObservation(&req.Observations[i]))
	}
	failed := h.proc.ProcessBatch(c.Request().Context(), obs)

	res := models.BatchResult{Accepted: len(obs) - len(failed), Rejected: len(failed)}
	if len(failed) > 0 {
		res.Errors = make(map[int]string, len(failed))
		for i, err := range failed {
			res.Errors[i] = err.Error()
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *VitalsHandler) ListPatients(c echo.Context) error {
	ids := h.store.SubjectIDs()
	rows := make([]models.PatientSummary, 0, len(ids))
	for _, id := range ids {
		p, ok := h.store.GetPatient(id)
		if !ok {
			continue
		}
		s := models.PatientSummary{SubjectID: id, Observations: len(p.Observations)}
		if n := len(p.Observations); n > 0 {
			s.LastSeen = p.Observations[n-1].Timestamp
		}
		rows = append(rows, s)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *VitalsHandler) GetPatient(c echo.Context) error {
	req := &models.PatientPathRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, ok := h.store.GetPatient(req.PatientID)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("patient %d not found", req.PatientID))
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *VitalsHandler) QueryObservations(c echo.Context) error {
	req := &models.QueryObservationsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	start := parseBound(req.Start, math.MinInt64)
	end := parseBound(req.End, math.MaxInt64)
	rows := h.store.Query(req.PatientID, start, end)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *VitalsHandler) Evaluate(c echo.Context) error {
	req := &models.PatientPathRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if async, _ := strconv.ParseBool(c.QueryParam("async")); async {
		if h.jobs == nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("deferred evaluation is not enabled"))
		}
		err := h.jobs.Enqueue(c.Request().Context(), usecase.EvaluateJobType, usecase.EvaluateRequest{PatientID: req.PatientID})
		if err != nil {
			h.logger.Error("enqueue evaluation failed", xlogger.Int("patient_id", req.PatientID), xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.InternalError("could not enqueue evaluation").WithError(err))
		}
		return xhttp.DataResponse(c, http.StatusAccepted, map[string]int{"patient_id": req.PatientID})
	}
	alerts := h.engine.Evaluate(c.Request().Context(), req.PatientID)
	return xhttp.ListResponse(c, alerts, int64(len(alerts)))
}

func (h *VitalsHandler) ListAlerts(c echo.Context) error {
	req := &models.ListAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	patient := parsePatientFilter(req.PatientID)

	all := h.engine.Alerts()
	rows := make([]models.Alert, 0, len(all))
	for _, a := range all {
		if patient >= 0 && a.SubjectID != patient {
			continue
		}
		if req.Condition != "" && a.Condition != req.Condition {
			continue
		}
		rows = append(rows, a)
	}
	total := int64(len(rows))
	if len(rows) > req.Limit {
		rows = rows[len(rows)-req.Limit:]
	}
	return xhttp.ListResponse(c, rows, total)
}

func (h *VitalsHandler) RecentAlerts(c echo.Context) error {
	if h.board == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("alert board is not enabled"))
	}
	req := &models.RecentAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	patient := parsePatientFilter(req.PatientID)
	rows, err := h.board.Recent(c.Request().Context(), patient, req.Limit)
	if err != nil {
		h.logger.Error("read alert board failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("alert board unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *VitalsHandler) TriggerAlert(c echo.Context) error {
	req := &models.TriggerAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ts := h.now().UnixMilli()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	if !h.engine.TriggerExternal(c.Request().Context(), req.PatientID, req.Condition, ts) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("patient %d not found", req.PatientID))
	}
	return xhttp.CreatedResponse(c, models.NewExternalAlert(req.PatientID, req.Condition, ts))
}

func (h *VitalsHandler) UntriggerAlert(c echo.Context) error {
	req := &models.UntriggerAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	removed := h.engine.Untrigger(req.PatientID, req.Condition)
	if h.board != nil {
		if _, err := h.board.Remove(c.Request().Context(), req.PatientID, req.Condition); err != nil {
			h.logger.Warn("alert board remove failed", xlogger.Int("patient_id", req.PatientID), xlogger.Error(err))
		}
	}
	return xhttp.SuccessResponse(c, map[string]int{"removed": removed})
}

func (h *VitalsHandler) ResetAlerts(c echo.Context) error {
	h.engine.Reset()
	if h.board != nil {
		if err := h.board.Clear(c.Request().Context()); err != nil {
			h.logger.Warn("alert board clear failed", xlogger.Error(err))
		}
	}
	h.logger.Info("alert log reset", xlogger.String("remote", c.RealIP()))
	return xhttp.NoContentResponse(c)
}

func (h *VitalsHandler) toObservation(req *models.AppendObservationRequest) models.Observation {
	ts := h.now().UnixMilli()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	return models.Observation{
		SubjectID: req.PatientID,
		Category:  models.Category(req.Category),
		Value:     *req.Value,
		Timestamp: ts,
	}
}

// parseBound reads a filter that already passed the "instant" check.
func parseBound(s string, def int64) int64 {
	if ms, ok := xutil.ParseMillis(s); ok {
		return ms
	}
	return def
}

// parsePatientFilter returns -1 for an empty filter, meaning every patient.
func parsePatientFilter(s string) int {
	id, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return id
}
