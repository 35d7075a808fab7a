package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return rec
}

func TestNewJSONWritesFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("phy", "v1")).Debug(context.Background(), "drop packet",
		Float64("rx_power_dbm", -97.5),
		Bool("sync", false),
		Duration("duration", 250*time.Microsecond),
	)

	rec := decode(t, &buf)
	if rec["msg"] != "drop packet" || rec["level"] != "DEBUG" {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["phy"] != "v1" || rec["rx_power_dbm"] != -97.5 || rec["sync"] != false {
		t.Fatalf("missing fields in %v", rec)
	}
	if _, ok := rec[SimTimeKey]; ok {
		t.Fatalf("sim_time stamped without a clock: %v", rec)
	}
}

func TestLevelFiltersLowerSeverities(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filtering failed: %q", out)
	}
}

func TestWithSimClockStampsSimulatedTime(t *testing.T) {
	var buf bytes.Buffer
	now := 1500 * time.Millisecond
	log := WithSimClock(New(Config{Format: "json", Output: &buf}), func() time.Duration { return now })

	log.With(Vehicle("veh-1")).Info(context.Background(), "report accepted", Edge("main1"))

	rec := decode(t, &buf)
	if rec[SimTimeKey] != 1.5 {
		t.Fatalf("sim_time = %v, want 1.5", rec[SimTimeKey])
	}
	if rec["vehicle"] != "veh-1" || rec["edge"] != "main1" {
		t.Fatalf("missing domain fields in %v", rec)
	}
}

func TestWithSimClockOnNoop(t *testing.T) {
	if _, ok := WithSimClock(Noop(), func() time.Duration { return 0 }).(noopLogger); !ok {
		t.Fatalf("expected noop logger to pass through")
	}
	if _, ok := WithSimClock(nil, nil).(noopLogger); !ok {
		t.Fatalf("expected noop logger for nil input")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SIM_LOG_LEVEL", "debug")
	t.Setenv("SIM_LOG_FORMAT", "json")
	t.Setenv("SIM_LOG_SOURCE", "true")

	cfg := ConfigFromEnv()
	if cfg.Level != "debug" || cfg.Format != "json" || !cfg.AddSource {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestWithRunLoggerReusesExistingID(t *testing.T) {
	ctx, _ := WithRunLogger(context.Background(), nil)
	id := RunIDFromContext(ctx)
	if id == "" {
		t.Fatalf("expected run_id on context")
	}

	ctx2, _ := WithRunLogger(ctx, Noop())
	if got := RunIDFromContext(ctx2); got != id {
		t.Fatalf("run_id changed from %q to %q", id, got)
	}
}
