package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/timgluz/autoprocess/aggregate"
	"github.com/timgluz/autoprocess/autoprocess"
	"github.com/timgluz/autoprocess/metrics"
	"github.com/timgluz/autoprocess/middleware"
	"github.com/timgluz/autoprocess/response"
	"github.com/timgluz/autoprocess/secret"
	"github.com/timgluz/autoprocess/timeseries"
)

const maxBodyBytes = 8 << 20

type server struct {
	executor    *autoprocess.Executor
	definitions autoprocess.Repository
	store       timeseries.Store
	secrets     secret.Store
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func newServer(
	executor *autoprocess.Executor,
	definitions autoprocess.Repository,
	store timeseries.Store,
	secrets secret.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
) *server {
	return &server{
		executor:    executor,
		definitions: definitions,
		store:       store,
		secrets:     secrets,
		metrics:     m,
		logger:      logger,
	}
}

func (s *server) routes() http.Handler {
	router := httprouter.New()

	router.GET("/healthz", s.handleHealth)
	router.Handler(http.MethodGet, "/metrics", s.metrics.Handler())

	router.GET("/autoprocesses", s.auth(s.handleListDefinitions))
	router.GET("/autoprocesses/:id", s.auth(s.handleGetDefinition))
	router.PUT("/autoprocesses/:id", s.auth(s.handleSaveDefinition))
	router.POST("/autoprocesses/:id/execute", s.auth(s.handleExecute))
	router.POST("/executions", s.auth(s.handleExecuteAll))

	router.GET("/timeseries", s.auth(s.handleListTimeseries))
	router.GET("/timeseries/:id", s.auth(s.handleGetTimeseries))
	router.GET("/timeseries/:id/data", s.auth(s.handleGetData))
	router.POST("/timeseries/:id/data", s.auth(s.handleAppendData))

	router.NotFound = response.NewNotFoundHandler(s.logger)
	router.MethodNotAllowed = response.NewMethodNotAllowedHandler(s.logger)
	return router
}

func (s *server) auth(h httprouter.Handle) httprouter.Handle {
	return middleware.BearerAuth(h, s.secrets)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.executor.IsReady() {
		response.RenderError(w, fmt.Errorf("service is not ready"), http.StatusServiceUnavailable)
		return
	}
	response.RenderJSONResponse(w, map[string]string{"status": "ok"})
}

func (s *server) handleListDefinitions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	items, err := s.definitions.List(r.Context())
	if err != nil {
		s.renderError(w, err)
		return
	}

	pagination, err := response.ParsePagination(r)
	if err != nil {
		response.RenderError(w, err, http.StatusBadRequest)
		return
	}
	page := response.Paginate(items, &pagination)
	response.RenderJSONResponse(w, response.NewCollectionResponse(page, &pagination))
}

func (s *server) handleGetDefinition(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	d, err := s.definitions.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	response.RenderJSONResponse(w, d)
}

func (s *server) handleSaveDefinition(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var d autoprocess.Definition
	if err := decodeBody(w, r, &d); err != nil {
		response.RenderError(w, err, http.StatusBadRequest)
		return
	}

	id := ps.ByName("id")
	if d.ID != "" && d.ID != id {
		response.RenderError(w, fmt.Errorf("definition id %q does not match path %q", d.ID, id), http.StatusBadRequest)
		return
	}
	d.ID = id

	if err := s.executor.SaveDefinition(r.Context(), &d); err != nil {
		s.renderError(w, err)
		return
	}
	response.RenderJSONResponse(w, response.NewActionResponse("Definition saved: "+d.ID, d))
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	result, err := s.executor.Execute(r.Context(), ps.ByName("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	response.RenderJSONResponse(w, response.NewActionResponse("Definition executed: "+result.DefinitionID, result))
}

type executeAllRequest struct {
	IDs []string `json:"ids"`
}

// handleExecuteAll runs the listed definitions, or all of them when the
// body is empty.
func (s *server) handleExecuteAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req executeAllRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			response.RenderError(w, err, http.StatusBadRequest)
			return
		}
	}

	results, err := s.executor.ExecuteAll(r.Context(), req.IDs...)
	if err != nil {
		s.logger.Error("Not all definitions were executed", "executed", len(results), "error", err)
		response.RenderJSON(w, http.StatusInternalServerError,
			response.NewPartialResponse(fmt.Sprintf("%d definitions executed", len(results)), results, err))
		return
	}
	response.RenderJSONResponse(w, response.NewActionResponse(fmt.Sprintf("%d definitions executed", len(results)), results))
}

// timeseriesView adds the ISO 8601 form of the time step, e.g. "10min" -> "PT10M".
type timeseriesView struct {
	timeseries.Timeseries
	TimeStepISO8601 string `json:"time_step_iso8601,omitempty"`
}

func (s *server) newTimeseriesView(ts timeseries.Timeseries) timeseriesView {
	view := timeseriesView{Timeseries: ts}
	if ts.TimeStep == "" {
		return view
	}

	step, err := aggregate.ParseTimeStep(ts.TimeStep)
	if err != nil {
		s.logger.Warn("Stored time step is not parseable", "timeseries_id", ts.ID, "time_step", ts.TimeStep, "error", err)
		return view
	}
	view.TimeStepISO8601 = step.ISO8601()
	return view
}

func (s *server) handleListTimeseries(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	series, err := s.store.ListTimeseries(r.Context())
	if err != nil {
		s.renderError(w, err)
		return
	}

	items := make([]timeseriesView, 0, len(series))
	for _, ts := range series {
		items = append(items, s.newTimeseriesView(ts))
	}

	pagination, err := response.ParsePagination(r)
	if err != nil {
		response.RenderError(w, err, http.StatusBadRequest)
		return
	}
	page := response.Paginate(items, &pagination)
	response.RenderJSONResponse(w, response.NewCollectionResponse(page, &pagination))
}

func (s *server) handleGetTimeseries(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ts, err := s.store.GetTimeseries(r.Context(), ps.ByName("id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	response.RenderJSONResponse(w, s.newTimeseriesView(*ts))
}

// handleGetData returns the records at or after the optional "start" query
// parameter, an RFC 3339 timestamp or an ISO 8601 look-back such as "P3D".
func (s *server) handleGetData(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	start, err := timeseries.ParseStart(r.URL.Query().Get("start"), time.Now())
	if err != nil {
		response.RenderError(w, err, http.StatusBadRequest)
		return
	}

	frame, err := s.store.GetData(r.Context(), ps.ByName("id"), start)
	if err != nil {
		s.renderError(w, err)
		return
	}
	response.RenderJSONResponse(w, frame)
}

func (s *server) handleAppendData(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var frame timeseries.Frame
	if err := decodeBody(w, r, &frame); err != nil {
		response.RenderError(w, err, http.StatusBadRequest)
		return
	}

	id := ps.ByName("id")
	if err := s.executor.AppendData(r.Context(), id, &frame); err != nil {
		s.renderError(w, err)
		return
	}
	response.RenderJSON(w, http.StatusCreated,
		response.NewActionResponse(fmt.Sprintf("%d records appended to %s", frame.Len(), id), nil))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *server) renderError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	response.RenderError(w, err, status)
}

func statusFor(err error) int {
	switch {
	case autoprocess.IsConfigurationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, autoprocess.ErrDefinitionNotFound), errors.Is(err, timeseries.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, timeseries.ErrAppendNotAfterEnd):
		return http.StatusConflict
	case errors.Is(err, timeseries.ErrInvalidFrame):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
