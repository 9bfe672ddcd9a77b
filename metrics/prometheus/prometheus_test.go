package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDecision(t *testing.T) {
	decisionsTotal.Reset()

	RecordDecision("join")
	RecordDecision("join")
	RecordDecision("stay")

	joins := testutil.ToFloat64(decisionsTotal.WithLabelValues("join"))
	stays := testutil.ToFloat64(decisionsTotal.WithLabelValues("stay"))

	if joins != 2 {
		t.Errorf("Expected 2 join decisions, got %f", joins)
	}
	if stays != 1 {
		t.Errorf("Expected 1 stay decision, got %f", stays)
	}
}

func TestRecordConnectionOutcomeSessionGauge(t *testing.T) {
	connectionOutcomesTotal.Reset()
	sessionsActive.Set(0)

	RecordConnectionOutcome("join", "success")
	active := testutil.ToFloat64(sessionsActive)
	if active != 1 {
		t.Errorf("Expected 1 active session after join, got %f", active)
	}

	RecordConnectionOutcome("join", "retries_exhausted")
	active = testutil.ToFloat64(sessionsActive)
	if active != 1 {
		t.Errorf("Expected failed join to leave gauge at 1, got %f", active)
	}

	RecordConnectionOutcome("leave", "success")
	active = testutil.ToFloat64(sessionsActive)
	if active != 0 {
		t.Errorf("Expected 0 active sessions after leave, got %f", active)
	}

	outcomes := testutil.ToFloat64(connectionOutcomesTotal.WithLabelValues("join", "success"))
	if outcomes != 1 {
		t.Errorf("Expected 1 join success outcome, got %f", outcomes)
	}
}

func TestRecordForcedCleanupSessionGauge(t *testing.T) {
	connectionOutcomesTotal.Reset()
	sessionsActive.Set(0)

	RecordConnectionOutcome("join", "success")
	RecordForcedCleanup()

	active := testutil.ToFloat64(sessionsActive)
	if active != 0 {
		t.Errorf("Expected 0 active sessions after forced cleanup, got %f", active)
	}
	outcomes := testutil.ToFloat64(connectionOutcomesTotal.WithLabelValues("cleanup", "forced"))
	if outcomes != 1 {
		t.Errorf("Expected 1 forced cleanup outcome, got %f", outcomes)
	}
}

func TestRecordHealthCleanupLeavesGauge(t *testing.T) {
	sessionsActive.Set(1)
	RecordHealthCleanup()
	if active := testutil.ToFloat64(sessionsActive); active != 1 {
		t.Errorf("Expected health cleanup alone to leave gauge at 1, got %f", active)
	}
}

func TestRecordSynthesis(t *testing.T) {
	synthesisDuration.Reset()
	synthesisTotal.Reset()

	RecordSynthesis("coqui", "success", 1.2)
	RecordSynthesis("coqui", "success", 0.8)
	RecordSynthesis("piper", "error", 0.1)

	successCount := testutil.ToFloat64(synthesisTotal.WithLabelValues("coqui", "success"))
	errorCount := testutil.ToFloat64(synthesisTotal.WithLabelValues("piper", "error"))

	if successCount != 2 {
		t.Errorf("Expected 2 successful syntheses, got %f", successCount)
	}
	if errorCount != 1 {
		t.Errorf("Expected 1 failed synthesis, got %f", errorCount)
	}

	count := testutil.CollectAndCount(synthesisDuration)
	if count == 0 {
		t.Error("Expected non-zero histogram observations")
	}
}

func TestRecordCacheLookup(t *testing.T) {
	cacheLookupsTotal.Reset()

	RecordCacheLookup("hit")
	RecordCacheLookup("hit")
	RecordCacheLookup("miss")
	RecordCacheLookup("invalidated")

	hits := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss"))

	if hits != 2 {
		t.Errorf("Expected 2 cache hits, got %f", hits)
	}
	if misses != 1 {
		t.Errorf("Expected 1 cache miss, got %f", misses)
	}
}

func TestRecordCacheEviction(t *testing.T) {
	// Counters cannot be reset individually; measure the delta instead.
	before := testutil.ToFloat64(cacheEvictionsTotal)

	RecordCacheEviction(3)
	RecordCacheEviction(1)

	delta := testutil.ToFloat64(cacheEvictionsTotal) - before
	if delta != 4 {
		t.Errorf("Expected 4 evictions recorded, got %f", delta)
	}
}

func TestSetCacheEntries(t *testing.T) {
	SetCacheEntries(17)

	entries := testutil.ToFloat64(cacheEntries)
	if entries != 17 {
		t.Errorf("Expected 17 cache entries, got %f", entries)
	}
}

func TestRecordPlayback(t *testing.T) {
	playbacksTotal.Reset()

	RecordPlayback("success")
	RecordPlayback("skipped")
	RecordPlayback("skipped")

	skipped := testutil.ToFloat64(playbacksTotal.WithLabelValues("skipped"))
	if skipped != 2 {
		t.Errorf("Expected 2 skipped playbacks, got %f", skipped)
	}
}

func TestNewExporter(t *testing.T) {
	exporter := NewExporter(":9091")
	if exporter == nil {
		t.Fatal("Expected non-nil exporter")
	}
	if exporter.Registry() == nil {
		t.Error("Expected non-nil registry")
	}
}

func TestNewExporterWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9092", reg)

	if exporter.Registry() != reg {
		t.Error("Expected custom registry to be used")
	}
}

func TestExporterHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter",
	})
	reg.MustRegister(counter)
	counter.Inc()

	exporter := NewExporterWithRegistry(":9093", reg)
	handler := exporter.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "test_counter") {
		t.Error("Expected response to contain test_counter metric")
	}
}

func TestExporterRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9094", reg)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custom_counter",
		Help: "Custom counter",
	})

	err := exporter.Register(counter)
	if err != nil {
		t.Errorf("Expected no error registering counter, got %v", err)
	}

	// Registering again should fail
	err = exporter.Register(counter)
	if err == nil {
		t.Error("Expected error when registering duplicate counter")
	}
}

func TestExporterStartShutdown(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	errCh := make(chan error, 1)
	go func() {
		errCh <- exporter.Start()
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := exporter.Shutdown(ctx)
	if err != nil {
		t.Errorf("Expected no error on shutdown, got %v", err)
	}

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for server to stop")
	}
}
