package telemetry

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordSpans installs a tracer backed by an in-memory recorder for the
// duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := tracer
	useProvider(tp)

	t.Cleanup(func() {
		tracer = prev
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "dittobtt", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())
}

func TestNoOpTracer(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartBTTSpan(ctx, SpanBTTRead, Sector(1))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))

	require.NotPanics(t, func() {
		RecordError(ctx, nil)
		RecordError(ctx, errors.New("boom"))
		SetAttributes(ctx, ClientIP("192.168.1.1"))
	})
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestStartBTTSpan(t *testing.T) {
	rec := recordSpans(t)

	ctx, span := StartBTTSpan(context.Background(), SpanBTTWrite, Sector(42), Count(8), Lane(3))
	assert.NotEmpty(t, TraceID(ctx))
	assert.NotEmpty(t, SpanID(ctx))
	RecordError(ctx, errors.New("media error"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, SpanBTTWrite, ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "media error", ended[0].Status().Description)

	attrs := attrMap(ended[0].Attributes())
	assert.Equal(t, int64(42), attrs[AttrSector].AsInt64())
	assert.Equal(t, int64(8), attrs[AttrCount].AsInt64())
	assert.Equal(t, int64(3), attrs[AttrLane].AsInt64())
}

func TestStartSnapshotSpan(t *testing.T) {
	rec := recordSpans(t)

	ctx, parent := StartSnapshotSpan(context.Background(), SpanSnapshotExport, "backups", Parts(4))
	_, child := StartSpan(ctx, SpanSnapshotPart, trace.WithAttributes(Part(2), StorageKey("dev/part-00000002")))
	child.End()
	parent.End()

	ended := rec.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, SpanSnapshotPart, ended[0].Name())
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())

	attrs := attrMap(ended[1].Attributes())
	assert.Equal(t, "backups", attrs[AttrBucket].AsString())
	assert.Equal(t, int64(4), attrs[AttrParts].AsInt64())
}

func TestStartAPISpan(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartAPISpan(context.Background(), "GET", "/api/v1/sectors/{sector}", ClientIP("10.0.0.1"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, trace.SpanKindServer, ended[0].SpanKind())

	attrs := attrMap(ended[0].Attributes())
	assert.Equal(t, "GET", attrs[AttrHTTPMethod].AsString())
	assert.Equal(t, "/api/v1/sectors/{sector}", attrs[AttrHTTPRoute].AsString())
	assert.Equal(t, "10.0.0.1", attrs[AttrClientIP].AsString())
}

func TestAttributeHelpers(t *testing.T) {
	tests := []struct {
		name string
		kv   attribute.KeyValue
		key  string
		want any
	}{
		{"ClientAddr", ClientAddr("10.0.0.1:5000"), AttrClientAddr, "10.0.0.1:5000"},
		{"DeviceUUID", DeviceUUID("abc"), AttrDeviceUUID, "abc"},
		{"LBASize", LBASize(4096), AttrLBASize, int64(4096)},
		{"NLBA", NLBA(100), AttrNLBA, int64(100)},
		{"Arenas", Arenas(2), AttrArenas, int64(2)},
		{"Arena", Arena(1), AttrArena, int64(1)},
		{"Premap", Premap(7), AttrPremap, int64(7)},
		{"Postmap", Postmap(101), AttrPostmap, int64(101)},
		{"Retries", Retries(2), AttrRetries, int64(2)},
		{"StoreType", StoreType("mmap"), AttrStoreType, "mmap"},
		{"StorePath", StorePath("/dev/pmem0"), AttrStorePath, "/dev/pmem0"},
		{"Region", Region("eu-west-1"), AttrRegion, "eu-west-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, string(tt.kv.Key))
			assert.Equal(t, tt.want, tt.kv.Value.AsInterface())
		})
	}
}

func TestProfilingDisabled(t *testing.T) {
	cfg := DefaultProfilingConfig()
	assert.Equal(t, "dittobtt", cfg.ServiceName)

	shutdown, err := InitProfiling(cfg)
	require.NoError(t, err)
	assert.NoError(t, shutdown())
	assert.False(t, IsProfilingEnabled())
}

func TestProfilingRejectsUnknownType(t *testing.T) {
	cfg := DefaultProfilingConfig()
	cfg.Enabled = true
	cfg.ProfileTypes = []string{"cpu", "heap-ish"}

	_, err := InitProfiling(cfg)
	require.Error(t, err)
	assert.False(t, IsProfilingEnabled())
}

func TestParseProfileTypes(t *testing.T) {
	types, err := parseProfileTypes([]string{"cpu", "mutex_duration"})
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileCPU, pyroscope.ProfileMutexDuration}, types)

	_, err = parseProfileTypes([]string{"heap"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block_count")

	names := ProfileTypeNames()
	assert.Len(t, names, 10)
	assert.True(t, sort.StringsAreSorted(names))
}
