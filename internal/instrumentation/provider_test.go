package instrumentation

import (
	"context"
	"testing"
	"time"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if provider.Enabled() {
		t.Error("expected provider to be disabled")
	}
	if provider.Metrics() == nil {
		t.Error("expected metrics to be non-nil even when disabled")
	}
	if provider.HasPrometheus() {
		t.Error("disabled provider should not expose prometheus")
	}
	if provider.Tracer("test") == nil {
		t.Error("expected a no-op tracer")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no error on shutdown, got %v", err)
	}
}

func TestNewProvider_PrometheusExporter(t *testing.T) {
	provider := newTestProvider(t, false)

	if !provider.Enabled() {
		t.Error("expected provider to be enabled")
	}
	if !provider.HasPrometheus() {
		t.Error("expected prometheus exporter to be configured")
	}
	if provider.Tracer("test") == nil {
		t.Error("expected tracer to be non-nil")
	}
}

func TestNewProvider_StdoutTracing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:       "test-service",
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterStdout,
		TraceSamplingRate: 1.0,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"unknown metrics exporter", Config{Enabled: true, MetricsExporter: "statsd"}},
		{"otlp without endpoint", Config{Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: ExporterOTLP}},
		{"bad sampling rate", Config{Enabled: true, TraceSamplingRate: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(context.Background(), tt.config); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestProvider_NilReceiver(t *testing.T) {
	var p *Provider
	if p.Enabled() {
		t.Error("nil provider should not be enabled")
	}
	if p.Metrics() != nil {
		t.Error("nil provider should return nil metrics")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("nil provider shutdown returned %v", err)
	}
}
