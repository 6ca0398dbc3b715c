package model

import (
	"context"

	"github.com/mongodb/anser/bsonutil"
	"github.com/netperch/perch"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// EnsureIndexes builds the read-path indexes. Safe to run repeatedly; the
// uniqueness of the natural key itself rides on _id and needs no separate
// index.
func EnsureIndexes(ctx context.Context, env perch.Environment) error {
	if env == nil {
		return errors.New("cannot build indexes with a nil environment")
	}

	measurementIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: bsonutil.GetDottedKeyName(measurementInfoKey, measurementInfoRunIDKey), Value: 1}}},
		{Keys: bson.D{{Key: measurementReceivedAtKey, Value: -1}}},
		{Keys: bson.D{
			{Key: bsonutil.GetDottedKeyName(measurementInfoKey, measurementInfoMetricNameKey), Value: 1},
			{Key: measurementUnitKey, Value: 1},
		}},
	}
	traceHopIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: traceHopRunIDKey, Value: 1}, {Key: traceHopHopIndexKey, Value: 1}}},
	}

	db := env.GetDB()
	if _, err := db.Collection(measurementCollection).Indexes().CreateMany(ctx, measurementIndexes); err != nil {
		return errors.Wrapf(err, "problem building indexes for collection '%s'", measurementCollection)
	}
	if _, err := db.Collection(traceHopCollection).Indexes().CreateMany(ctx, traceHopIndexes); err != nil {
		return errors.Wrapf(err, "problem building indexes for collection '%s'", traceHopCollection)
	}

	return nil
}
