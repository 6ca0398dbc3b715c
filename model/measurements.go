package model

import (
	"context"

	"github.com/mongodb/anser/bsonutil"
	"github.com/netperch/perch"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MeasurementRecords provides the read side of the measurement store.
type MeasurementRecords struct {
	Records []MeasurementRecord

	env       perch.Environment
	populated bool
}

func (rs *MeasurementRecords) Setup(e perch.Environment) { rs.env = e }
func (rs *MeasurementRecords) IsNil() bool               { return !rs.populated }
func (rs *MeasurementRecords) Slice() []MeasurementRecord {
	return rs.Records
}

// FindByRunID returns every metric recorded for a run, newest first.
func (rs *MeasurementRecords) FindByRunID(ctx context.Context, runID string) error {
	if rs.env == nil {
		return errors.New("cannot find with a nil environment")
	}
	if runID == "" {
		return errors.New("must specify a run id")
	}

	rs.populated = false
	cursor, err := rs.env.GetDB().Collection(measurementCollection).Find(
		ctx,
		bson.M{bsonutil.GetDottedKeyName(measurementInfoKey, measurementInfoRunIDKey): runID},
		options.Find().SetSort(bson.D{{Key: measurementReceivedAtKey, Value: -1}}),
	)
	if err != nil {
		return errors.Wrapf(err, "problem finding measurement records for run '%s'", runID)
	}
	if err := cursor.All(ctx, &rs.Records); err != nil {
		return errors.Wrapf(err, "problem decoding measurement records for run '%s'", runID)
	}

	rs.populated = true

	return nil
}

// MeasurementFindOptions describes a restartable window over the full list
// of records.
type MeasurementFindOptions struct {
	Limit  int
	Offset int
}

// Find returns a page of measurement records ordered by received_at
// descending. The offset makes the listing restartable.
func (rs *MeasurementRecords) Find(ctx context.Context, opts MeasurementFindOptions) error {
	if rs.env == nil {
		return errors.New("cannot find with a nil environment")
	}
	if opts.Limit <= 0 {
		return errors.New("must specify a positive limit")
	}
	if opts.Offset < 0 {
		return errors.New("cannot specify a negative offset")
	}

	rs.populated = false
	cursor, err := rs.env.GetDB().Collection(measurementCollection).Find(
		ctx,
		bson.M{},
		options.Find().
			SetSort(bson.D{{Key: measurementReceivedAtKey, Value: -1}}).
			SetSkip(int64(opts.Offset)).
			SetLimit(int64(opts.Limit)),
	)
	if err != nil {
		return errors.Wrap(err, "problem finding measurement records")
	}
	if err := cursor.All(ctx, &rs.Records); err != nil {
		return errors.Wrap(err, "problem decoding measurement records")
	}

	rs.populated = true

	return nil
}

// Count returns the total number of stored measurement records.
func (rs *MeasurementRecords) Count(ctx context.Context) (int64, error) {
	if rs.env == nil {
		return 0, errors.New("cannot count with a nil environment")
	}

	count, err := rs.env.GetDB().Collection(measurementCollection).CountDocuments(ctx, bson.M{})
	return count, errors.Wrap(err, "problem counting measurement records")
}

// MetricCatalogEntry describes one distinct metric observed in the archive.
type MetricCatalogEntry struct {
	Name        string `bson:"name" json:"name"`
	Unit        string `bson:"unit,omitempty" json:"unit,omitempty"`
	Description string `bson:"-" json:"description,omitempty"`
}

var metricDescriptions = map[string]string{
	"throughput_mbps": "measured throughput from iperf3/nuttcp/ethr (megabits per second)",
	"retransmits":     "sender TCP retransmissions observed by iperf3",
	"rtt_ms":          "round-trip time (ping), milliseconds",
	"delay_ms":        "one-way or two-way delay (owamp/twping), milliseconds",
	"loss_pct":        "packet loss percentage",
	"mtu_bytes":       "detected MTU for path, bytes",
	"hop_count":       "traceroute hop count",
	"clock_offset_s":  "clock offset between endpoints, seconds",
}

// FindMetricCatalog returns the distinct (metric name, unit) pairs present
// in the archive with descriptions for the well-known metrics. A limit of
// zero or less returns the full catalog.
func FindMetricCatalog(ctx context.Context, env perch.Environment, limit int) ([]MetricCatalogEntry, error) {
	if env == nil {
		return nil, errors.New("cannot query the catalog with a nil environment")
	}

	nameKey := bsonutil.GetDottedKeyName(measurementInfoKey, measurementInfoMetricNameKey)
	pipeline := []bson.M{
		{"$group": bson.M{
			"_id": bson.M{"name": "$" + nameKey, "unit": "$" + measurementUnitKey},
		}},
		{"$sort": bson.D{{Key: "_id.name", Value: 1}, {Key: "_id.unit", Value: 1}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.M{"$limit": limit})
	}

	cursor, err := env.GetDB().Collection(measurementCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "problem querying metric catalog")
	}

	docs := []struct {
		ID MetricCatalogEntry `bson:"_id"`
	}{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "problem decoding metric catalog")
	}

	catalog := make([]MetricCatalogEntry, 0, len(docs))
	for _, doc := range docs {
		entry := doc.ID
		entry.Description = metricDescriptions[entry.Name]
		catalog = append(catalog, entry)
	}

	return catalog, nil
}
