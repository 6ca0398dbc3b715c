package data

import (
	"context"
	"fmt"
	"net/http"

	"github.com/evergreen-ci/gimlet"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/netperch/perch"
	dbmodel "github.com/netperch/perch/model"
	"github.com/netperch/perch/rest/model"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DBConnector implements the Connector interface through interactions with
// the backing database.
type DBConnector struct {
	env perch.Environment
}

func CreateNewDBConnector(env perch.Environment) Connector {
	return &DBConnector{env: env}
}

func (dbc *DBConnector) InsertMeasurement(ctx context.Context, record *dbmodel.MeasurementRecord) (dbmodel.SaveResult, error) {
	record.Setup(dbc.env)

	result, err := record.Save(ctx)
	if err != nil {
		return "", storeErrorResponse(err, fmt.Sprintf("problem saving measurement record for run '%s'", record.Info.RunID))
	}

	if cache := dbc.env.GetStatsCache(); cache != nil {
		grip.Warning(message.WrapError(cache.AddStat(perch.Stat{
			Count:    1,
			Metric:   record.Info.MetricName,
			TestType: record.Info.TestType,
			Outcome:  string(result),
		}), message.Fields{
			"message": "could not record ingest stat",
			"id":      record.ID,
		}))
	}

	return result, nil
}

func (dbc *DBConnector) UpsertTraceHops(ctx context.Context, hops []dbmodel.TraceHop) error {
	if len(hops) == 0 {
		return nil
	}

	traceHops := dbmodel.TraceHops{Hops: hops}
	traceHops.Setup(dbc.env)

	if err := traceHops.UpsertMany(ctx); err != nil {
		return storeErrorResponse(err, fmt.Sprintf("problem saving trace hops for run '%s'", hops[0].RunID))
	}

	return nil
}

func (dbc *DBConnector) FindMeasurementsByRunID(ctx context.Context, runID string) ([]model.APIMeasurementRecord, error) {
	records := dbmodel.MeasurementRecords{}
	records.Setup(dbc.env)

	if err := records.FindByRunID(ctx, runID); err != nil {
		return nil, storeErrorResponse(err, fmt.Sprintf("problem finding measurement records for run '%s'", runID))
	}
	if len(records.Slice()) == 0 {
		return nil, gimlet.ErrorResponse{
			StatusCode: http.StatusNotFound,
			Message:    fmt.Sprintf("no measurement records for run '%s'", runID),
		}
	}

	return importRecords(records.Slice())
}

func (dbc *DBConnector) ListMeasurements(ctx context.Context, opts ListOptions) ([]model.APIMeasurementRecord, error) {
	records := dbmodel.MeasurementRecords{}
	records.Setup(dbc.env)

	findOpts := dbmodel.MeasurementFindOptions{Limit: opts.Limit, Offset: opts.Offset}
	if err := records.Find(ctx, findOpts); err != nil {
		return nil, storeErrorResponse(err, "problem listing measurement records")
	}

	return importRecords(records.Slice())
}

func (dbc *DBConnector) FindMetricCatalog(ctx context.Context, limit int) ([]model.APIMetricCatalogEntry, error) {
	catalog, err := dbmodel.FindMetricCatalog(ctx, dbc.env, limit)
	if err != nil {
		return nil, storeErrorResponse(err, "problem querying metric catalog")
	}

	apiCatalog := make([]model.APIMetricCatalogEntry, len(catalog))
	for i, entry := range catalog {
		if err := apiCatalog[i].Import(entry); err != nil {
			return nil, gimlet.ErrorResponse{
				StatusCode: http.StatusInternalServerError,
				Message:    errors.Wrap(err, "corrupt metric catalog entry").Error(),
			}
		}
	}

	return apiCatalog, nil
}

func (dbc *DBConnector) CheckHealth(ctx context.Context) error {
	client, err := dbc.env.GetClient()
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.Wrap(client.Ping(ctx, readpref.Primary()), "database is unreachable")
}

func importRecords(records []dbmodel.MeasurementRecord) ([]model.APIMeasurementRecord, error) {
	apiRecords := make([]model.APIMeasurementRecord, len(records))
	for i := range records {
		if err := apiRecords[i].Import(records[i]); err != nil {
			return nil, gimlet.ErrorResponse{
				StatusCode: http.StatusInternalServerError,
				Message:    errors.Wrap(err, "corrupt measurement record").Error(),
			}
		}
	}

	return apiRecords, nil
}

// storeErrorResponse maps a model-layer failure onto the status the caller
// needs to pick a retry strategy: storage problems are retryable (and safe
// to retry, the upsert is idempotent), key conflicts are server defects,
// and anything else is a bad request.
func storeErrorResponse(err error, msg string) gimlet.ErrorResponse {
	wrapped := errors.Wrap(err, msg)

	switch {
	case dbmodel.IsStorageUnavailable(err):
		return gimlet.ErrorResponse{
			StatusCode: http.StatusServiceUnavailable,
			Message:    wrapped.Error(),
		}
	case dbmodel.IsKeyConflict(err):
		return gimlet.ErrorResponse{
			StatusCode: http.StatusInternalServerError,
			Message:    wrapped.Error(),
		}
	case dbmodel.IsMalformedRecord(err):
		return gimlet.ErrorResponse{
			StatusCode: http.StatusBadRequest,
			Message:    wrapped.Error(),
		}
	default:
		return gimlet.ErrorResponse{
			StatusCode: http.StatusInternalServerError,
			Message:    wrapped.Error(),
		}
	}
}
