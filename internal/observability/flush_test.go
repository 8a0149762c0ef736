package observability

import (
	"context"
	"errors"
	"testing"
)

// TestFlushTelemetry_RunsHooks verifies every hook runs and failures are joined.
func TestFlushTelemetry_RunsHooks(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	err := FlushTelemetry(context.Background(), nil,
		func(context.Context) error { ran = append(ran, "a"); return nil },
		func(context.Context) error { ran = append(ran, "b"); return boom },
	)
	if !errors.Is(err, boom) {
		t.Errorf("FlushTelemetry() error = %v, want %v", err, boom)
	}
	if len(ran) != 2 {
		t.Errorf("hooks run = %v, want both", ran)
	}
}

func TestFlushTelemetry_NoHooks(t *testing.T) {
	if err := FlushTelemetry(context.Background(), nil); err != nil {
		t.Errorf("FlushTelemetry() error = %v, want nil", err)
	}
}
