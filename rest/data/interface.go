package data

import (
	"context"

	dbmodel "github.com/netperch/perch/model"
	"github.com/netperch/perch/rest/model"
)

// Connector abstracts the link between the service and API layers, allowing
// for changes in the service architecture without forcing changes to the
// API.
type Connector interface {
	// InsertMeasurement commits a measurement record idempotently and
	// reports whether the record was created or updated.
	InsertMeasurement(context.Context, *dbmodel.MeasurementRecord) (dbmodel.SaveResult, error)
	// UpsertTraceHops commits the per-hop rows of a trace run
	// idempotently.
	UpsertTraceHops(context.Context, []dbmodel.TraceHop) error
	// FindMeasurementsByRunID returns every metric recorded for the
	// given run, newest first.
	FindMeasurementsByRunID(context.Context, string) ([]model.APIMeasurementRecord, error)
	// ListMeasurements returns a page of measurement records ordered by
	// received_at descending.
	ListMeasurements(context.Context, ListOptions) ([]model.APIMeasurementRecord, error)
	// FindMetricCatalog returns the distinct metrics in the archive.
	FindMetricCatalog(context.Context, int) ([]model.APIMetricCatalogEntry, error)
	// CheckHealth verifies that the backing store is reachable.
	CheckHealth(context.Context) error
}

// ListOptions is a restartable window over the full record listing.
type ListOptions struct {
	Limit  int
	Offset int
}
