package metrics

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFormatBinaryBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReportLogsMemory(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := NewCollector(0, zap.New(core))

	c.Report()

	entries := logs.FilterMessageSnippet("Memory used").All()
	if len(entries) != 1 {
		t.Fatalf("expected one memory report, got %d", len(entries))
	}
}

func TestDisabledCollectorReturns(t *testing.T) {
	c := NewCollector(0, zap.NewNop())
	if c.Enabled() {
		t.Fatal("collector with zero interval should be disabled")
	}

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return for a disabled collector")
	}
}
