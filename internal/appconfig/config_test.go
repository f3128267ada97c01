package appconfig

import (
	"testing"
	"time"
)

func TestDefaultConfigDisablesWatchdog(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Service.LoadingTimeoutSeconds != 0 {
		t.Fatalf("expected readiness watchdog to default off")
	}
	if cfg.Executor.Mode != ExecutorMock {
		t.Fatalf("expected mock executor by default, got %q", cfg.Executor.Mode)
	}
}

func TestServiceConfigMapping(t *testing.T) {
	cfg := Config{
		StateDir: "/state",
		Service:  ServiceConfig{BufferMaxLines: 10, TabNamePrefix: "Attack", LoadingTimeoutSeconds: 30},
		Logging:  LoggingConfig{DisableAuditTrails: true},
	}
	svc := cfg.ServiceConfig()
	if svc.StateDir != "/state" || svc.BufferMaxLines != 10 || svc.TabNamePrefix != "Attack" {
		t.Fatalf("unexpected service config: %+v", svc)
	}
	if svc.LoadingTimeout != 30*time.Second || !svc.DisableAuditLogging {
		t.Fatalf("unexpected timeout/audit mapping: %+v", svc)
	}
}
