package model

import (
	"context"
	"testing"
	"time"

	"github.com/netperch/perch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestTraceHopID(t *testing.T) {
	assert.Equal(t, traceHopID("run-1", 1), traceHopID("run-1", 1))
	assert.Equal(t, traceHopID("run-1", 1), traceHopID(" run-1 ", 1))
	assert.NotEqual(t, traceHopID("run-1", 1), traceHopID("run-1", 2))
	assert.NotEqual(t, traceHopID("run-1", 1), traceHopID("run-2", 1))
}

func TestExtractTraceHops(t *testing.T) {
	info := MeasurementInfo{RunID: "run-trace", MetricName: "hop_count", TestType: "trace"}

	t.Run("NoHopsEntry", func(t *testing.T) {
		assert.Nil(t, ExtractTraceHops(info, "", "", map[string]interface{}{"paths": 1}))
		assert.Nil(t, ExtractTraceHops(info, "", "", map[string]interface{}{"hops": "not a list"}))
		assert.Nil(t, ExtractTraceHops(info, "", "", nil))
	})
	t.Run("ParsesHops", func(t *testing.T) {
		payload := map[string]interface{}{
			"hops": []interface{}{
				map[string]interface{}{"idx": float64(1), "ip": "10.0.0.1", "rtt_ms": 0.42},
				map[string]interface{}{"idx": float64(2), "ip": "10.0.0.2"},
			},
		}

		hops := ExtractTraceHops(info, "host-a", "host-b", payload)
		require.Len(t, hops, 2)

		assert.Equal(t, "run-trace", hops[0].RunID)
		assert.Equal(t, 1, hops[0].HopIndex)
		assert.Equal(t, "10.0.0.1", hops[0].HopIP)
		assert.Equal(t, "host-a", hops[0].Source)
		assert.Equal(t, "host-b", hops[0].Dest)
		require.NotNil(t, hops[0].RTTMillis)
		assert.Equal(t, 0.42, *hops[0].RTTMillis)

		assert.Equal(t, 2, hops[1].HopIndex)
		assert.Nil(t, hops[1].RTTMillis, "a hop without a response has no rtt")
	})
	t.Run("SkipsMalformedEntries", func(t *testing.T) {
		payload := map[string]interface{}{
			"hops": []interface{}{
				"not a document",
				map[string]interface{}{"ip": "10.0.0.1"},
				map[string]interface{}{"idx": float64(0), "ip": "10.0.0.2"},
				map[string]interface{}{"idx": 1.5, "ip": "10.0.0.3"},
				map[string]interface{}{"idx": float64(3)},
				map[string]interface{}{"idx": float64(4), "ip": "10.0.0.4"},
			},
		}

		hops := ExtractTraceHops(info, "", "", payload)
		require.Len(t, hops, 1)
		assert.Equal(t, 4, hops[0].HopIndex)
	})
	t.Run("IntegerIndexTypes", func(t *testing.T) {
		payload := map[string]interface{}{
			"hops": []interface{}{
				map[string]interface{}{"idx": 1, "ip": "10.0.0.1", "rtt_ms": 2},
				map[string]interface{}{"idx": int64(2), "ip": "10.0.0.2", "rtt_ms": float32(1.5)},
			},
		}

		hops := ExtractTraceHops(info, "", "", payload)
		require.Len(t, hops, 2)
		require.NotNil(t, hops[0].RTTMillis)
		assert.Equal(t, float64(2), *hops[0].RTTMillis)
	})
}

type traceHopSuite struct {
	ctx    context.Context
	cancel context.CancelFunc
	env    perch.Environment

	suite.Suite
}

func TestTraceHopSuite(t *testing.T) {
	suite.Run(t, new(traceHopSuite))
}

func (s *traceHopSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.env = perch.GetEnvironment()
	s.Require().NoError(s.env.Configure(s.ctx, &perch.Configuration{
		MongoDBURI:    "mongodb://localhost:27017",
		DatabaseName:  "perch_test_trace_hops",
		SocketTimeout: time.Minute,
		NumWorkers:    2,
		AuthDisabled:  true,
	}))
}

func (s *traceHopSuite) SetupTest() {
	s.Require().NoError(s.env.GetDB().Collection(traceHopCollection).Drop(s.ctx))
}

func (s *traceHopSuite) TearDownSuite() {
	defer s.cancel()
	s.NoError(s.env.GetDB().Drop(s.ctx))
}

func (s *traceHopSuite) TestUpsertManyIsIdempotent() {
	rtt := 0.42
	hops := &TraceHops{Hops: []TraceHop{
		{RunID: "run-trace", HopIndex: 1, HopIP: "10.0.0.1", RTTMillis: &rtt},
		{RunID: "run-trace", HopIndex: 2, HopIP: "10.0.0.2"},
	}}
	hops.Setup(s.env)
	s.Require().NoError(hops.UpsertMany(s.ctx))

	newRTT := 0.37
	resubmission := &TraceHops{Hops: []TraceHop{
		{RunID: "run-trace", HopIndex: 1, HopIP: "10.0.0.9", RTTMillis: &newRTT},
		{RunID: "run-trace", HopIndex: 2, HopIP: "10.0.0.2"},
	}}
	resubmission.Setup(s.env)
	s.Require().NoError(resubmission.UpsertMany(s.ctx))

	found := &TraceHops{}
	found.Setup(s.env)
	s.Require().NoError(found.FindByRunID(s.ctx, "run-trace"))
	s.Require().Len(found.Slice(), 2, "re-ingesting a run must replace hops, not duplicate them")
	s.Equal(1, found.Slice()[0].HopIndex)
	s.Equal("10.0.0.9", found.Slice()[0].HopIP)
	s.Equal(2, found.Slice()[1].HopIndex)
}

func (s *traceHopSuite) TestFindByRunIDOrdersByHopIndex() {
	hops := &TraceHops{Hops: []TraceHop{
		{RunID: "run-order", HopIndex: 3, HopIP: "10.0.0.3"},
		{RunID: "run-order", HopIndex: 1, HopIP: "10.0.0.1"},
		{RunID: "run-order", HopIndex: 2, HopIP: "10.0.0.2"},
	}}
	hops.Setup(s.env)
	s.Require().NoError(hops.UpsertMany(s.ctx))

	found := &TraceHops{}
	found.Setup(s.env)
	s.Require().NoError(found.FindByRunID(s.ctx, "run-order"))
	s.Require().Len(found.Slice(), 3)
	for i, hop := range found.Slice() {
		s.Equal(i+1, hop.HopIndex)
	}

	s.Error(found.FindByRunID(s.ctx, ""))
}

func (s *traceHopSuite) TestUpsertManyEmptyAndUnconfigured() {
	hops := &TraceHops{}
	s.Error(hops.UpsertMany(s.ctx), "missing environment should fail")

	hops.Setup(s.env)
	s.NoError(hops.UpsertMany(s.ctx), "no hops is a no-op")
}
