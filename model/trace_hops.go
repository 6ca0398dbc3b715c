package model

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mongodb/anser/bsonutil"
	"github.com/netperch/perch"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const traceHopCollection = "trace_hops"

// TraceHop is one hop of a traceroute run. Hops are keyed by (run id, hop
// index) so re-ingesting the same run replaces hops instead of duplicating
// them.
type TraceHop struct {
	ID        string    `bson:"_id,omitempty"`
	RunID     string    `bson:"run_id"`
	HopIndex  int       `bson:"hop_index"`
	HopIP     string    `bson:"hop_ip"`
	RTTMillis *float64  `bson:"rtt_ms,omitempty"`
	Source    string    `bson:"source,omitempty"`
	Dest      string    `bson:"destination,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

var (
	traceHopIDKey        = bsonutil.MustHaveTag(TraceHop{}, "ID")
	traceHopRunIDKey     = bsonutil.MustHaveTag(TraceHop{}, "RunID")
	traceHopHopIndexKey  = bsonutil.MustHaveTag(TraceHop{}, "HopIndex")
	traceHopHopIPKey     = bsonutil.MustHaveTag(TraceHop{}, "HopIP")
	traceHopRTTMillisKey = bsonutil.MustHaveTag(TraceHop{}, "RTTMillis")
	traceHopSourceKey    = bsonutil.MustHaveTag(TraceHop{}, "Source")
	traceHopDestKey      = bsonutil.MustHaveTag(TraceHop{}, "Dest")
	traceHopUpdatedAtKey = bsonutil.MustHaveTag(TraceHop{}, "UpdatedAt")
)

func traceHopID(runID string, hopIndex int) string {
	hash := sha1.New()

	_, _ = io.WriteString(hash, strings.TrimSpace(runID))
	_, _ = io.WriteString(hash, "\x00")
	_, _ = io.WriteString(hash, fmt.Sprint(hopIndex))

	return fmt.Sprintf("%x", hash.Sum(nil))
}

// TraceHops holds the hops of one or more runs.
type TraceHops struct {
	Hops []TraceHop

	env       perch.Environment
	populated bool
}

func (ths *TraceHops) Setup(e perch.Environment) { ths.env = e }
func (ths *TraceHops) IsNil() bool               { return !ths.populated }
func (ths *TraceHops) Slice() []TraceHop         { return ths.Hops }

// UpsertMany commits every hop with the same idempotent insert-or-replace
// semantics as measurement records.
func (ths *TraceHops) UpsertMany(ctx context.Context) error {
	if ths.env == nil {
		return errors.New("cannot save with a nil environment")
	}
	if len(ths.Hops) == 0 {
		return nil
	}

	now := time.Now()
	ops := make([]mongo.WriteModel, 0, len(ths.Hops))
	for i := range ths.Hops {
		hop := &ths.Hops[i]
		if hop.ID == "" {
			hop.ID = traceHopID(hop.RunID, hop.HopIndex)
		}
		hop.UpdatedAt = now

		ops = append(ops, mongo.NewUpdateOneModel().
			SetFilter(bson.M{traceHopIDKey: hop.ID}).
			SetUpdate(bson.M{"$set": bson.M{
				traceHopRunIDKey:     hop.RunID,
				traceHopHopIndexKey:  hop.HopIndex,
				traceHopHopIPKey:     hop.HopIP,
				traceHopRTTMillisKey: hop.RTTMillis,
				traceHopSourceKey:    hop.Source,
				traceHopDestKey:      hop.Dest,
				traceHopUpdatedAtKey: now,
			}}).
			SetUpsert(true))
	}

	_, err := ths.env.GetDB().Collection(traceHopCollection).BulkWrite(ctx, ops)
	return errors.Wrap(err, "problem saving trace hops")
}

// FindByRunID returns the hops of a run in path order.
func (ths *TraceHops) FindByRunID(ctx context.Context, runID string) error {
	if ths.env == nil {
		return errors.New("cannot find with a nil environment")
	}
	if runID == "" {
		return errors.New("must specify a run id")
	}

	ths.populated = false
	cursor, err := ths.env.GetDB().Collection(traceHopCollection).Find(
		ctx,
		bson.M{traceHopRunIDKey: runID},
		options.Find().SetSort(bson.D{{Key: traceHopHopIndexKey, Value: 1}}),
	)
	if err != nil {
		return errors.Wrapf(err, "problem finding trace hops for run '%s'", runID)
	}
	if err := cursor.All(ctx, &ths.Hops); err != nil {
		return errors.Wrapf(err, "problem decoding trace hops for run '%s'", runID)
	}

	ths.populated = true

	return nil
}

// ExtractTraceHops pulls per-hop rows out of a trace result payload. The
// payload's hops entry is a list of documents shaped like
// {"idx": 1, "ip": "10.0.0.1", "rtt_ms": 0.42}; entries without an index or
// address are skipped. Returns nil when the payload carries no hops.
func ExtractTraceHops(info MeasurementInfo, source, dest string, payload map[string]interface{}) []TraceHop {
	rawHops, ok := payload["hops"].([]interface{})
	if !ok {
		return nil
	}

	hops := []TraceHop{}
	for _, rawHop := range rawHops {
		doc, ok := rawHop.(map[string]interface{})
		if !ok {
			continue
		}

		idx, ok := payloadInt(doc["idx"])
		if !ok || idx < 1 {
			continue
		}
		ip, _ := doc["ip"].(string)
		if ip == "" {
			continue
		}

		hop := TraceHop{
			RunID:    info.RunID,
			HopIndex: idx,
			HopIP:    ip,
			Source:   source,
			Dest:     dest,
		}
		if rtt, ok := payloadFloat(doc["rtt_ms"]); ok {
			hop.RTTMillis = &rtt
		}
		hops = append(hops, hop)
	}

	return hops
}

func payloadFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}

func payloadInt(v interface{}) (int, bool) {
	f, ok := payloadFloat(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
