package model

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mongodb/anser/bsonutil"
	"github.com/mongodb/anser/db"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/netperch/perch"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const measurementCollection = "measurements"

// Direction values for runs that report bidirectional results.
const (
	DirectionForward = "forward"
	DirectionReverse = "reverse"
)

// SaveResult reports whether a save committed a new record or replaced the
// content of an existing one. Both are successful outcomes; the distinction
// lets a submitting agent tell a first submission from a resubmission
// without the resubmission ever producing a second row.
type SaveResult string

const (
	SaveCreated SaveResult = "created"
	SaveUpdated SaveResult = "updated"
)

// MeasurementRecord describes one reported test result. Its identity is the
// (run id, metric name, direction) tuple; repeated submissions with the same
// identity collapse onto a single record.
type MeasurementRecord struct {
	ID          string                 `bson:"_id,omitempty"`
	Info        MeasurementInfo        `bson:"info"`
	Source      Endpoint               `bson:"source,omitempty"`
	Destination Endpoint               `bson:"destination,omitempty"`
	Value       *float64               `bson:"value,omitempty"`
	Unit        string                 `bson:"unit,omitempty"`
	Payload     map[string]interface{} `bson:"payload,omitempty"`
	ReceivedAt  time.Time              `bson:"received_at"`
	UpdatedAt   time.Time              `bson:"updated_at"`

	env       perch.Environment
	populated bool
}

var (
	measurementIDKey          = bsonutil.MustHaveTag(MeasurementRecord{}, "ID")
	measurementInfoKey        = bsonutil.MustHaveTag(MeasurementRecord{}, "Info")
	measurementSourceKey      = bsonutil.MustHaveTag(MeasurementRecord{}, "Source")
	measurementDestinationKey = bsonutil.MustHaveTag(MeasurementRecord{}, "Destination")
	measurementValueKey       = bsonutil.MustHaveTag(MeasurementRecord{}, "Value")
	measurementUnitKey        = bsonutil.MustHaveTag(MeasurementRecord{}, "Unit")
	measurementPayloadKey     = bsonutil.MustHaveTag(MeasurementRecord{}, "Payload")
	measurementReceivedAtKey  = bsonutil.MustHaveTag(MeasurementRecord{}, "ReceivedAt")
	measurementUpdatedAtKey   = bsonutil.MustHaveTag(MeasurementRecord{}, "UpdatedAt")
)

// MeasurementInfo holds the identity and labels of a measurement record.
// RunID, MetricName, and Direction form the natural key.
type MeasurementInfo struct {
	RunID      string `bson:"run_id"`
	MetricName string `bson:"metric_name"`
	Direction  string `bson:"direction,omitempty"`
	TestType   string `bson:"test_type,omitempty"`
	Tool       string `bson:"tool,omitempty"`
	Status     string `bson:"status,omitempty"`
}

var (
	measurementInfoRunIDKey      = bsonutil.MustHaveTag(MeasurementInfo{}, "RunID")
	measurementInfoMetricNameKey = bsonutil.MustHaveTag(MeasurementInfo{}, "MetricName")
	measurementInfoDirectionKey  = bsonutil.MustHaveTag(MeasurementInfo{}, "Direction")
	measurementInfoTestTypeKey   = bsonutil.MustHaveTag(MeasurementInfo{}, "TestType")
	measurementInfoToolKey       = bsonutil.MustHaveTag(MeasurementInfo{}, "Tool")
	measurementInfoStatusKey     = bsonutil.MustHaveTag(MeasurementInfo{}, "Status")
)

// Endpoint describes one side of a measured path.
type Endpoint struct {
	Address string `bson:"address,omitempty"`
	Label   string `bson:"label,omitempty"`
}

var (
	endpointAddressKey = bsonutil.MustHaveTag(Endpoint{}, "Address")
	endpointLabelKey   = bsonutil.MustHaveTag(Endpoint{}, "Label")
)

// CreateMeasurementRecord is the entry point for building a measurement
// record from resolved identity info and submitted content.
func CreateMeasurementRecord(info MeasurementInfo, payload map[string]interface{}) *MeasurementRecord {
	return &MeasurementRecord{
		ID:        info.ID(),
		Info:      info,
		Payload:   payload,
		populated: true,
	}
}

// Setup sets the environment for the measurement record. The environment is
// required for all database operations.
func (m *MeasurementRecord) Setup(e perch.Environment) { m.env = e }

// IsNil returns if the record is populated or not.
func (m *MeasurementRecord) IsNil() bool { return !m.populated }

// ID creates a unique, deterministic hash for the record's natural key. The
// key fields are compared case-sensitively with surrounding whitespace
// trimmed; no other normalization is applied.
func (id *MeasurementInfo) ID() string {
	hash := sha1.New()

	_, _ = io.WriteString(hash, strings.TrimSpace(id.RunID))
	_, _ = io.WriteString(hash, "\x00")
	_, _ = io.WriteString(hash, strings.TrimSpace(id.MetricName))
	_, _ = io.WriteString(hash, "\x00")
	_, _ = io.WriteString(hash, strings.TrimSpace(id.Direction))

	return fmt.Sprintf("%x", hash.Sum(nil))
}

// Validate trims the key fields and checks that the info can produce a
// stable identity. Failures are tagged as malformed-record errors.
func (id *MeasurementInfo) Validate() error {
	id.RunID = strings.TrimSpace(id.RunID)
	id.MetricName = strings.TrimSpace(id.MetricName)
	id.Direction = strings.TrimSpace(id.Direction)

	catcher := grip.NewBasicCatcher()
	if id.RunID == "" {
		catcher.Add(errors.New("must specify a run id"))
	}
	if id.MetricName == "" {
		catcher.Add(errors.New("must specify a metric name"))
	}
	switch id.Direction {
	case "", DirectionForward, DirectionReverse:
	default:
		catcher.Add(errors.Errorf("invalid direction '%s'", id.Direction))
	}

	return MakeMalformedRecordError(catcher.Resolve())
}

// Find searches the database for the measurement record. Either the ID or
// the full Info needs to be specified.
func (m *MeasurementRecord) Find(ctx context.Context) error {
	if m.env == nil {
		return errors.New("cannot find with a nil environment")
	}

	if m.ID == "" {
		m.ID = m.Info.ID()
	}

	m.populated = false
	err := m.env.GetDB().Collection(measurementCollection).FindOne(ctx, bson.M{measurementIDKey: m.ID}).Decode(m)
	if db.ResultsNotFound(err) {
		return errors.Errorf("could not find measurement record in the database with id %s", m.ID)
	} else if err != nil {
		return errors.Wrapf(err, "problem finding measurement record with id %s", m.ID)
	}

	m.populated = true

	return nil
}

// Save commits the record with insert-or-replace semantics: the first
// successful save of an identity creates the record and stamps its
// received_at once; every later save with the same identity replaces the
// content fields and refreshes updated_at only. The decision between the
// two branches is made atomically by the store's key-unique upsert, never by
// a separate read in application code, so concurrent saves of the same
// identity serialize to exactly one created result over the record's
// lifetime. The record should be populated.
func (m *MeasurementRecord) Save(ctx context.Context) (SaveResult, error) {
	if !m.populated {
		return "", errors.New("cannot save unpopulated measurement record")
	}
	if m.env == nil {
		return "", errors.New("cannot save with a nil environment")
	}

	if m.ID == "" {
		m.ID = m.Info.ID()
	}

	result, err := m.upsert(ctx)
	if mongo.IsDuplicateKeyError(errors.Cause(err)) {
		// Two first-writers racing on the same unseen key can surface
		// a duplicate key error to the loser instead of taking the
		// update branch. Re-running the same atomic update matches
		// the now-committed record and reports an update.
		result, err = m.upsert(ctx)
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(errors.Cause(err)) {
			err = &keyConflictError{id: m.ID, err: errors.Cause(err)}
			grip.Alert(message.WrapError(err, message.Fields{
				"collection": measurementCollection,
				"id":         m.ID,
				"run_id":     m.Info.RunID,
				"metric":     m.Info.MetricName,
				"op":         "save measurement record",
			}))
			return "", err
		}
		return "", errors.Wrapf(err, "problem saving measurement record %s", m.ID)
	}

	grip.Debug(message.Fields{
		"collection": measurementCollection,
		"id":         m.ID,
		"run_id":     m.Info.RunID,
		"metric":     m.Info.MetricName,
		"result":     result,
		"op":         "save measurement record",
	})

	return result, nil
}

func (m *MeasurementRecord) upsert(ctx context.Context) (SaveResult, error) {
	now := time.Now()

	updateResult, err := m.env.GetDB().Collection(measurementCollection).UpdateOne(
		ctx,
		bson.M{measurementIDKey: m.ID},
		bson.M{
			"$set": bson.M{
				measurementInfoKey:        m.Info,
				measurementSourceKey:      m.Source,
				measurementDestinationKey: m.Destination,
				measurementValueKey:       m.Value,
				measurementUnitKey:        m.Unit,
				measurementPayloadKey:     m.Payload,
				measurementUpdatedAtKey:   now,
			},
			"$setOnInsert": bson.M{
				measurementReceivedAtKey: now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return "", err
	}

	m.UpdatedAt = now
	if updateResult.UpsertedCount > 0 {
		m.ReceivedAt = now
		return SaveCreated, nil
	}

	return SaveUpdated, nil
}
