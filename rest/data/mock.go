package data

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/evergreen-ci/gimlet"
	dbmodel "github.com/netperch/perch/model"
	"github.com/netperch/perch/rest/model"
)

// MockConnector is an in-memory implementation of the Connector interface
// for testing the API layer without a database. Upserts follow the same
// identity semantics as the real store.
type MockConnector struct {
	mu            sync.Mutex
	Records       map[string]dbmodel.MeasurementRecord
	Hops          map[string]dbmodel.TraceHop
	InsertFailure error
}

func CreateNewMockConnector() *MockConnector {
	return &MockConnector{
		Records: map[string]dbmodel.MeasurementRecord{},
		Hops:    map[string]dbmodel.TraceHop{},
	}
}

func (mc *MockConnector) InsertMeasurement(_ context.Context, record *dbmodel.MeasurementRecord) (dbmodel.SaveResult, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.InsertFailure != nil {
		return "", mc.InsertFailure
	}

	if record.ID == "" {
		record.ID = record.Info.ID()
	}

	now := time.Now()
	result := dbmodel.SaveUpdated
	existing, ok := mc.Records[record.ID]
	if ok {
		record.ReceivedAt = existing.ReceivedAt
	} else {
		result = dbmodel.SaveCreated
		record.ReceivedAt = now
	}
	record.UpdatedAt = now
	mc.Records[record.ID] = *record

	return result, nil
}

func (mc *MockConnector) UpsertTraceHops(_ context.Context, hops []dbmodel.TraceHop) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, hop := range hops {
		mc.Hops[fmt.Sprintf("%s-%d", hop.RunID, hop.HopIndex)] = hop
	}

	return nil
}

func (mc *MockConnector) FindMeasurementsByRunID(_ context.Context, runID string) ([]model.APIMeasurementRecord, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	records := []dbmodel.MeasurementRecord{}
	for _, record := range mc.Records {
		if record.Info.RunID == runID {
			records = append(records, record)
		}
	}
	if len(records) == 0 {
		return nil, gimlet.ErrorResponse{
			StatusCode: http.StatusNotFound,
			Message:    fmt.Sprintf("no measurement records for run '%s'", runID),
		}
	}
	sortRecords(records)

	return importRecords(records)
}

func (mc *MockConnector) ListMeasurements(_ context.Context, opts ListOptions) ([]model.APIMeasurementRecord, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	records := make([]dbmodel.MeasurementRecord, 0, len(mc.Records))
	for _, record := range mc.Records {
		records = append(records, record)
	}
	sortRecords(records)

	if opts.Offset >= len(records) {
		return []model.APIMeasurementRecord{}, nil
	}
	records = records[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(records) {
		records = records[:opts.Limit]
	}

	return importRecords(records)
}

func (mc *MockConnector) FindMetricCatalog(_ context.Context, limit int) ([]model.APIMetricCatalogEntry, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	seen := map[string]dbmodel.MetricCatalogEntry{}
	for _, record := range mc.Records {
		key := record.Info.MetricName + "\x00" + record.Unit
		seen[key] = dbmodel.MetricCatalogEntry{Name: record.Info.MetricName, Unit: record.Unit}
	}

	entries := make([]dbmodel.MetricCatalogEntry, 0, len(seen))
	for _, entry := range seen {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	apiEntries := make([]model.APIMetricCatalogEntry, len(entries))
	for i, entry := range entries {
		if err := apiEntries[i].Import(entry); err != nil {
			return nil, err
		}
	}

	return apiEntries, nil
}

func (mc *MockConnector) CheckHealth(_ context.Context) error { return nil }

func sortRecords(records []dbmodel.MeasurementRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].ReceivedAt.After(records[j].ReceivedAt)
	})
}
