package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/evergreen-ci/gimlet"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	dbmodel "github.com/netperch/perch/model"
	"github.com/netperch/perch/rest/data"
	"github.com/netperch/perch/rest/model"
	"github.com/pkg/errors"
)

const (
	defaultListLimit = 100
	traceTestType    = "trace"
)

///////////////////////////////////////////////////////////////////////////////
//
// POST /measurements

type ingestMeasurementHandler struct {
	request model.APIMeasurementRequest
	record  *dbmodel.MeasurementRecord
	sc      data.Connector
}

func makeIngestMeasurement(sc data.Connector) gimlet.RouteHandler {
	return &ingestMeasurementHandler{
		sc: sc,
	}
}

// Factory returns a pointer to a new ingestMeasurementHandler.
func (h *ingestMeasurementHandler) Factory() gimlet.RouteHandler {
	return &ingestMeasurementHandler{
		sc: h.sc,
	}
}

// Parse decodes the measurement payload from the request body and
// resolves it into a measurement record. Malformed payloads are
// rejected here so that Run only ever sees a valid record.
func (h *ingestMeasurementHandler) Parse(_ context.Context, r *http.Request) error {
	if err := gimlet.GetJSON(r.Body, &h.request); err != nil {
		return errors.Wrap(err, "problem reading measurement payload")
	}

	record, err := h.request.Export()
	if err != nil {
		return errors.WithStack(err)
	}
	h.record = record

	return nil
}

// Run saves the measurement record, writing trace hop documents as a
// side effect for trace test types, and reports whether the save
// created a new record or replayed an existing one.
func (h *ingestMeasurementHandler) Run(ctx context.Context) gimlet.Responder {
	result, err := h.sc.InsertMeasurement(ctx, h.record)
	if err != nil {
		err = errors.Wrapf(err, "problem saving measurement for run '%s'", h.record.Info.RunID)
		grip.Error(message.WrapError(err, message.Fields{
			"request": gimlet.GetRequestID(ctx),
			"method":  "POST",
			"route":   "/measurements",
			"run_id":  h.record.Info.RunID,
			"metric":  h.record.Info.MetricName,
		}))
		return gimlet.MakeJSONErrorResponder(err)
	}

	if h.record.Info.TestType == traceTestType {
		hops := dbmodel.ExtractTraceHops(h.record.Info, h.record.Source.Address, h.record.Destination.Address, h.record.Payload)
		if len(hops) > 0 {
			if err := h.sc.UpsertTraceHops(ctx, hops); err != nil {
				grip.Error(message.WrapError(err, message.Fields{
					"message": "problem saving trace hops",
					"request": gimlet.GetRequestID(ctx),
					"run_id":  h.record.Info.RunID,
					"hops":    len(hops),
				}))
				return gimlet.MakeJSONErrorResponder(errors.Wrap(err, "problem saving trace hops"))
			}
		}
	}

	return gimlet.NewJSONResponse(&model.APIIngestResponse{
		Status: http.StatusOK,
		Type:   "no_content",
		Result: string(result),
		ID:     h.record.ID,
		RunID:  h.record.Info.RunID,
	})
}

///////////////////////////////////////////////////////////////////////////////
//
// GET /measurements?limit=<int>&offset=<int>

type listMeasurementsHandler struct {
	opts data.ListOptions
	sc   data.Connector
}

func makeListMeasurements(sc data.Connector) gimlet.RouteHandler {
	return &listMeasurementsHandler{
		sc: sc,
	}
}

// Factory returns a pointer to a new listMeasurementsHandler.
func (h *listMeasurementsHandler) Factory() gimlet.RouteHandler {
	return &listMeasurementsHandler{
		sc: h.sc,
	}
}

// Parse fetches the pagination parameters from the query string.
func (h *listMeasurementsHandler) Parse(_ context.Context, r *http.Request) error {
	var err error

	vals := r.URL.Query()
	h.opts.Limit = defaultListLimit
	if limit := vals.Get("limit"); limit != "" {
		h.opts.Limit, err = strconv.Atoi(limit)
		if err != nil {
			return errors.Wrapf(err, "invalid limit '%s'", limit)
		}
		if h.opts.Limit <= 0 {
			return errors.Errorf("limit must be positive, got %d", h.opts.Limit)
		}
	}
	if offset := vals.Get("offset"); offset != "" {
		h.opts.Offset, err = strconv.Atoi(offset)
		if err != nil {
			return errors.Wrapf(err, "invalid offset '%s'", offset)
		}
		if h.opts.Offset < 0 {
			return errors.Errorf("offset must be non-negative, got %d", h.opts.Offset)
		}
	}

	return nil
}

// Run calls the data ListMeasurements function and returns the page of
// measurement records.
func (h *listMeasurementsHandler) Run(ctx context.Context) gimlet.Responder {
	records, err := h.sc.ListMeasurements(ctx, h.opts)
	if err != nil {
		err = errors.Wrap(err, "problem listing measurements")
		grip.Error(message.WrapError(err, message.Fields{
			"request": gimlet.GetRequestID(ctx),
			"method":  "GET",
			"route":   "/measurements",
			"limit":   h.opts.Limit,
			"offset":  h.opts.Offset,
		}))
		return gimlet.MakeJSONErrorResponder(err)
	}
	return gimlet.NewJSONResponse(records)
}

///////////////////////////////////////////////////////////////////////////////
//
// GET /measurements/run/{run_id}

type getMeasurementsByRunIDHandler struct {
	runID string
	sc    data.Connector
}

func makeGetMeasurementsByRunID(sc data.Connector) gimlet.RouteHandler {
	return &getMeasurementsByRunIDHandler{
		sc: sc,
	}
}

// Factory returns a pointer to a new getMeasurementsByRunIDHandler.
func (h *getMeasurementsByRunIDHandler) Factory() gimlet.RouteHandler {
	return &getMeasurementsByRunIDHandler{
		sc: h.sc,
	}
}

// Parse fetches the run_id from the http request.
func (h *getMeasurementsByRunIDHandler) Parse(_ context.Context, r *http.Request) error {
	h.runID = gimlet.GetVars(r)["run_id"]
	return nil
}

// Run calls the data FindMeasurementsByRunID function and returns all
// measurement records for the run.
func (h *getMeasurementsByRunIDHandler) Run(ctx context.Context) gimlet.Responder {
	records, err := h.sc.FindMeasurementsByRunID(ctx, h.runID)
	if err != nil {
		err = errors.Wrapf(err, "problem getting measurements for run '%s'", h.runID)
		grip.Error(message.WrapError(err, message.Fields{
			"request": gimlet.GetRequestID(ctx),
			"method":  "GET",
			"route":   "/measurements/run/{run_id}",
			"run_id":  h.runID,
		}))
		return gimlet.MakeJSONErrorResponder(err)
	}
	return gimlet.NewJSONResponse(records)
}

///////////////////////////////////////////////////////////////////////////////
//
// GET /metrics?limit=<int>

type metricCatalogHandler struct {
	limit int
	sc    data.Connector
}

func makeGetMetricCatalog(sc data.Connector) gimlet.RouteHandler {
	return &metricCatalogHandler{
		sc: sc,
	}
}

// Factory returns a pointer to a new metricCatalogHandler.
func (h *metricCatalogHandler) Factory() gimlet.RouteHandler {
	return &metricCatalogHandler{
		sc: h.sc,
	}
}

// Parse fetches the optional limit from the query string.
func (h *metricCatalogHandler) Parse(_ context.Context, r *http.Request) error {
	var err error

	if limit := r.URL.Query().Get("limit"); limit != "" {
		h.limit, err = strconv.Atoi(limit)
		if err != nil {
			return errors.Wrapf(err, "invalid limit '%s'", limit)
		}
		if h.limit <= 0 {
			return errors.Errorf("limit must be positive, got %d", h.limit)
		}
	}

	return nil
}

// Run calls the data FindMetricCatalog function and returns the
// distinct metric names with their units and descriptions.
func (h *metricCatalogHandler) Run(ctx context.Context) gimlet.Responder {
	entries, err := h.sc.FindMetricCatalog(ctx, h.limit)
	if err != nil {
		err = errors.Wrap(err, "problem getting metric catalog")
		grip.Error(message.WrapError(err, message.Fields{
			"request": gimlet.GetRequestID(ctx),
			"method":  "GET",
			"route":   "/metrics",
		}))
		return gimlet.MakeJSONErrorResponder(err)
	}
	return gimlet.NewJSONResponse(entries)
}
