package model

import (
	"time"

	"github.com/evergreen-ci/utility"
	dbmodel "github.com/netperch/perch/model"
	"github.com/pkg/errors"
)

// APIMeasurementRecord describes a stored measurement in API responses.
type APIMeasurementRecord struct {
	ID          *string                `json:"id"`
	RunID       *string                `json:"run_id"`
	MetricName  *string                `json:"metric_name"`
	Direction   *string                `json:"direction,omitempty"`
	TestType    *string                `json:"test_type,omitempty"`
	Tool        *string                `json:"tool,omitempty"`
	Status      *string                `json:"status,omitempty"`
	Source      *APIEndpoint           `json:"source,omitempty"`
	Destination *APIEndpoint           `json:"destination,omitempty"`
	Value       *float64               `json:"value,omitempty"`
	Unit        *string                `json:"unit,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	ReceivedAt  time.Time              `json:"received_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Import transforms a measurement record into an API model.
func (a *APIMeasurementRecord) Import(i interface{}) error {
	switch r := i.(type) {
	case dbmodel.MeasurementRecord:
		a.ID = utility.ToStringPtr(r.ID)
		a.RunID = utility.ToStringPtr(r.Info.RunID)
		a.MetricName = utility.ToStringPtr(r.Info.MetricName)
		a.Direction = stringPtrOrNil(r.Info.Direction)
		a.TestType = stringPtrOrNil(r.Info.TestType)
		a.Tool = stringPtrOrNil(r.Info.Tool)
		a.Status = stringPtrOrNil(r.Info.Status)
		a.Source = importEndpoint(r.Source)
		a.Destination = importEndpoint(r.Destination)
		a.Value = r.Value
		a.Unit = stringPtrOrNil(r.Unit)
		a.Payload = r.Payload
		a.ReceivedAt = r.ReceivedAt
		a.UpdatedAt = r.UpdatedAt
	case *dbmodel.MeasurementRecord:
		return a.Import(*r)
	default:
		return errors.New("incorrect type when converting to APIMeasurementRecord type")
	}
	return nil
}

// APIEndpoint describes one side of a measured path.
type APIEndpoint struct {
	Address *string `json:"address,omitempty"`
	Label   *string `json:"label,omitempty"`
}

func importEndpoint(e dbmodel.Endpoint) *APIEndpoint {
	if e.Address == "" && e.Label == "" {
		return nil
	}
	return &APIEndpoint{
		Address: stringPtrOrNil(e.Address),
		Label:   stringPtrOrNil(e.Label),
	}
}

func (a *APIEndpoint) export() dbmodel.Endpoint {
	if a == nil {
		return dbmodel.Endpoint{}
	}
	return dbmodel.Endpoint{
		Address: utility.FromStringPtr(a.Address),
		Label:   utility.FromStringPtr(a.Label),
	}
}

// APIMeasurementRequest is the body an agent submits to the ingestion
// endpoint. Payload and Raw are aliases; agents built against the older
// surface submit the result blob under raw.
type APIMeasurementRequest struct {
	RunID       string                 `json:"run_id"`
	MetricName  string                 `json:"metric_name"`
	Direction   string                 `json:"direction,omitempty"`
	TestType    string                 `json:"test_type,omitempty"`
	Tool        string                 `json:"tool,omitempty"`
	Status      string                 `json:"status,omitempty"`
	Source      *APIEndpoint           `json:"source,omitempty"`
	Destination *APIEndpoint           `json:"destination,omitempty"`
	Value       *float64               `json:"value,omitempty"`
	Unit        string                 `json:"unit,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Raw         map[string]interface{} `json:"raw,omitempty"`
}

// Export resolves the request's identity and builds the measurement record
// to commit. A request whose identity or payload does not validate returns
// a malformed-record error and never touches the store.
func (r *APIMeasurementRequest) Export() (*dbmodel.MeasurementRecord, error) {
	info := dbmodel.MeasurementInfo{
		RunID:      r.RunID,
		MetricName: r.MetricName,
		Direction:  r.Direction,
		TestType:   r.TestType,
		Tool:       r.Tool,
		Status:     r.Status,
	}
	if err := info.Validate(); err != nil {
		return nil, errors.WithStack(err)
	}

	payload := r.Payload
	if payload == nil {
		payload = r.Raw
	}
	if payload == nil {
		return nil, dbmodel.MakeMalformedRecordError(errors.New("must supply a payload or raw document"))
	}

	record := dbmodel.CreateMeasurementRecord(info, payload)
	record.Source = r.Source.export()
	record.Destination = r.Destination.export()
	record.Value = r.Value
	record.Unit = r.Unit

	return record, nil
}

// APIIngestResponse acknowledges an accepted submission. Result reports
// whether this was the first commit of the identity or a replacement; both
// are success.
type APIIngestResponse struct {
	Status int    `json:"status"`
	Type   string `json:"type"`
	Result string `json:"result"`
	ID     string `json:"id,omitempty"`
	RunID  string `json:"run_id,omitempty"`
}

// APIMetricCatalogEntry describes one distinct metric in the archive.
type APIMetricCatalogEntry struct {
	Name        *string `json:"name"`
	Unit        *string `json:"unit,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Import transforms a metric catalog entry into an API model.
func (a *APIMetricCatalogEntry) Import(i interface{}) error {
	switch e := i.(type) {
	case dbmodel.MetricCatalogEntry:
		a.Name = utility.ToStringPtr(e.Name)
		a.Unit = stringPtrOrNil(e.Unit)
		a.Description = stringPtrOrNil(e.Description)
	case *dbmodel.MetricCatalogEntry:
		return a.Import(*e)
	default:
		return errors.New("incorrect type when converting to APIMetricCatalogEntry type")
	}
	return nil
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return utility.ToStringPtr(s)
}
