package main

import (
	"strings"
	"testing"

	"github.com/paywave/paywave/internal/config"
	"github.com/paywave/paywave/internal/logging"
)

func TestRunReturnsConnectionErrors(t *testing.T) {
	cfg := config.Config{AppName: "paywave-test", AppEnv: "production", DatabaseURL: "postgres://%zz"}

	err := run(cfg, logging.Discard())
	if err == nil || !strings.Contains(err.Error(), "connect postgres") {
		t.Fatalf("expected connect postgres error, got %v", err)
	}
}
